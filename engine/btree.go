package engine

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/Hain2000/docindex/key"
	"github.com/google/btree"
)

type item struct {
	key   any
	value []byte
}

func lessItem(a, b *item) bool {
	return key.CompareStrict(a.key, b.key) < 0
}

// BTree 内存引擎，键直接用 key.CompareStrict 比较，不需要编码
type BTree struct {
	name string
	tree *btree.BTreeG[*item]
	lock *sync.RWMutex
}

func NewBTree(opts Options) *BTree {
	return &BTree{
		name: opts.Name,
		tree: btree.NewG[*item](32, lessItem),
		lock: new(sync.RWMutex),
	}
}

func (bt *BTree) Name() string      { return bt.name }
func (bt *BTree) Algorithm() string { return BTreeAlgorithm }
func (bt *BTree) Locator() string   { return "btree:" + bt.name }

func (bt *BTree) Create(context.Context) error { return bt.Clear() }

// Load 内存引擎没有需要加载的数据
func (bt *BTree) Load(context.Context) error { return nil }

func (bt *BTree) Delete(context.Context) error { return bt.Clear() }
func (bt *BTree) Flush() error                 { return nil }
func (bt *BTree) Close() error                 { return nil }

func (bt *BTree) Get(k any) ([]byte, bool, error) {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	it, ok := bt.tree.Get(&item{key: key.Normalize(k)})
	if !ok {
		return nil, false, nil
	}
	return it.value, true, nil
}

func (bt *BTree) Put(k any, value []byte) error {
	it := &item{key: key.Normalize(k), value: slices.Clone(value)}
	bt.lock.Lock()
	bt.tree.ReplaceOrInsert(it)
	bt.lock.Unlock()
	return nil
}

func (bt *BTree) Remove(k any) (bool, error) {
	bt.lock.Lock()
	_, ok := bt.tree.Delete(&item{key: key.Normalize(k)})
	bt.lock.Unlock()
	return ok, nil
}

func (bt *BTree) Contains(k any) (bool, error) {
	_, ok, err := bt.Get(k)
	return ok, err
}

func (bt *BTree) Clear() error {
	bt.lock.Lock()
	bt.tree.Clear(false)
	bt.lock.Unlock()
	return nil
}

func (bt *BTree) Size() (int64, error) {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	return int64(bt.tree.Len()), nil
}

func (bt *BTree) Iterator(opts IteratorOptions) (Iterator, error) {
	return bt.Range(Bounds{}, opts)
}

// Range 把范围内的数据拷贝出来，迭代期间不持有锁
func (bt *BTree) Range(b Bounds, opts IteratorOptions) (Iterator, error) {
	if b.HasFrom {
		b.From = key.Normalize(b.From)
	}
	if b.HasTo {
		b.To = key.Normalize(b.To)
	}

	bt.lock.RLock()
	defer bt.lock.RUnlock()

	values := make([]*item, 0)
	full := func() bool { return opts.Limit > 0 && len(values) >= opts.Limit }
	if !opts.Reverse {
		fn := func(it *item) bool {
			if !b.afterStart(it.key) {
				return true
			}
			if !b.beforeEnd(it.key) {
				return false
			}
			values = append(values, it)
			return !full()
		}
		if b.HasFrom {
			bt.tree.AscendGreaterOrEqual(&item{key: b.From}, fn)
		} else {
			bt.tree.Ascend(fn)
		}
	} else {
		fn := func(it *item) bool {
			if !b.beforeEnd(it.key) {
				return true
			}
			if !b.afterStart(it.key) {
				return false
			}
			values = append(values, it)
			return !full()
		}
		if b.HasTo {
			bt.tree.DescendLessOrEqual(&item{key: b.To}, fn)
		} else {
			bt.tree.Descend(fn)
		}
	}
	return &btreeIterator{reverse: opts.Reverse, values: values}, nil
}

func (bt *BTree) BeforeTxBegin()   {}
func (bt *BTree) AfterTxCommit()   {}
func (bt *BTree) AfterTxRollback() {}

// btree 索引迭代器
type btreeIterator struct {
	curIndex int
	reverse  bool    // 是否反向
	values   []*item // 范围内的数据快照
}

func (bi *btreeIterator) Rewind() {
	bi.curIndex = 0
}

func (bi *btreeIterator) Seek(k any) {
	k = key.Normalize(k)
	if bi.reverse {
		bi.curIndex = sort.Search(len(bi.values), func(i int) bool {
			return key.CompareStrict(bi.values[i].key, k) <= 0
		})
	} else {
		bi.curIndex = sort.Search(len(bi.values), func(i int) bool {
			return key.CompareStrict(bi.values[i].key, k) >= 0
		})
	}
}

func (bi *btreeIterator) Next() {
	bi.curIndex++
}

func (bi *btreeIterator) Valid() bool {
	return bi.curIndex < len(bi.values)
}

func (bi *btreeIterator) Key() any {
	return bi.values[bi.curIndex].key
}

func (bi *btreeIterator) Value() []byte {
	return bi.values[bi.curIndex].value
}

func (bi *btreeIterator) Err() error { return nil }

func (bi *btreeIterator) Close() {
	bi.values = nil
}
