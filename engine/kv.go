package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// kvStore 持久化引擎需要实现的最小接口，键已经是编码过的字节
type kvStore interface {
	open(dir string, opts Options) error
	get(k []byte) ([]byte, bool, error)
	set(k, v []byte, sync bool) error
	del(k []byte, sync bool) error
	clear(sync bool) error
	cursor(reverse bool) (kvCursor, error)
	flush() error
	close() error
}

// kvCursor 底层存储的游标，反向时 seek 定位到最后一个 <= k 的位置
type kvCursor interface {
	first()
	seek(k []byte)
	next()
	valid() bool
	key() []byte
	value() []byte
	err() error
	close()
}

type kvCheckpointer interface {
	checkpoint(dir string) error
}

// kvEngine 把 kvStore 包装成 Engine
type kvEngine struct {
	opts     Options
	newStore func() kvStore
	mu       sync.RWMutex
	store    kvStore
	size     atomic.Int64
	bulk     atomic.Bool
}

func newKVEngine(opts Options, newStore func() kvStore) *kvEngine {
	return &kvEngine{opts: opts, newStore: newStore}
}

func (e *kvEngine) Name() string      { return e.opts.Name }
func (e *kvEngine) Algorithm() string { return e.opts.Algorithm }

func (e *kvEngine) Locator() string {
	loc := e.opts.DirPath
	if e.opts.InMemory {
		loc = "memory"
	}
	return fmt.Sprintf("%s:%s#%016x", strings.ToLower(e.opts.Algorithm), loc, xxhash.Sum64String(loc+"/"+e.opts.Name))
}

func (e *kvEngine) Create(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.closeLocked(); err != nil {
		return err
	}
	if !e.opts.InMemory {
		if err := os.RemoveAll(e.opts.DirPath); err != nil {
			return err
		}
		if err := os.MkdirAll(e.opts.DirPath, os.ModePerm); err != nil {
			return err
		}
	}
	return e.openLocked()
}

func (e *kvEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		return nil
	}
	if !e.opts.InMemory {
		if _, err := os.Stat(e.opts.DirPath); err != nil {
			return errors.Wrapf(ErrEngineNotFound, "%s", e.opts.DirPath)
		}
	}
	if err := e.openLocked(); err != nil {
		return err
	}

	// 统计已有的 key 数量
	cur, err := e.store.cursor(false)
	if err != nil {
		return err
	}
	defer cur.close()
	var n int64
	for cur.first(); cur.valid(); cur.next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n++
	}
	if err := cur.err(); err != nil {
		return err
	}
	e.size.Store(n)
	if e.opts.Logger != nil {
		e.opts.Logger.Debug("engine loaded", "algorithm", e.opts.Algorithm, "name", e.opts.Name, "keys", n)
	}
	return nil
}

func (e *kvEngine) openLocked() error {
	s := e.newStore()
	if err := s.open(e.opts.DirPath, e.opts); err != nil {
		return err
	}
	e.store = s
	e.size.Store(0)
	return nil
}

func (e *kvEngine) closeLocked() error {
	if e.store == nil {
		return nil
	}
	err := e.store.close()
	e.store = nil
	return err
}

func (e *kvEngine) Delete(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.closeLocked()
	if !e.opts.InMemory {
		if rmErr := os.RemoveAll(e.opts.DirPath); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	e.size.Store(0)
	return err
}

func (e *kvEngine) Flush() error {
	s, err := e.current()
	if err != nil {
		return err
	}
	return s.flush()
}

func (e *kvEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *kvEngine) current() (kvStore, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return nil, ErrEngineClosed
	}
	return e.store, nil
}

func (e *kvEngine) sync() bool {
	return e.opts.SyncWrites && !e.bulk.Load()
}

func (e *kvEngine) Get(k any) ([]byte, bool, error) {
	s, err := e.current()
	if err != nil {
		return nil, false, err
	}
	enc, err := EncodeKey(k)
	if err != nil {
		return nil, false, err
	}
	return s.get(enc)
}

func (e *kvEngine) Put(k any, value []byte) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	enc, err := EncodeKey(k)
	if err != nil {
		return err
	}
	_, exists, err := s.get(enc)
	if err != nil {
		return err
	}
	if err := s.set(enc, value, e.sync()); err != nil {
		return err
	}
	if !exists {
		e.size.Add(1)
	}
	return nil
}

func (e *kvEngine) Remove(k any) (bool, error) {
	s, err := e.current()
	if err != nil {
		return false, err
	}
	enc, err := EncodeKey(k)
	if err != nil {
		return false, err
	}
	_, exists, err := s.get(enc)
	if err != nil || !exists {
		return false, err
	}
	if err := s.del(enc, e.sync()); err != nil {
		return false, err
	}
	e.size.Add(-1)
	return true, nil
}

func (e *kvEngine) Contains(k any) (bool, error) {
	_, ok, err := e.Get(k)
	return ok, err
}

func (e *kvEngine) Clear() error {
	s, err := e.current()
	if err != nil {
		return err
	}
	if err := s.clear(e.sync()); err != nil {
		return err
	}
	e.size.Store(0)
	return nil
}

func (e *kvEngine) Size() (int64, error) {
	if _, err := e.current(); err != nil {
		return 0, err
	}
	return e.size.Load(), nil
}

func (e *kvEngine) Iterator(opts IteratorOptions) (Iterator, error) {
	return e.Range(Bounds{}, opts)
}

func (e *kvEngine) Range(b Bounds, opts IteratorOptions) (Iterator, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	it := &kvIterator{reverse: opts.Reverse, limit: opts.Limit}
	if b.HasFrom {
		if it.lower, err = EncodeKey(b.From); err != nil {
			return nil, err
		}
		it.hasLower, it.lowerIncl = true, b.FromInclusive
	}
	if b.HasTo {
		if it.upper, err = EncodeKey(b.To); err != nil {
			return nil, err
		}
		it.hasUpper, it.upperIncl = true, b.ToInclusive
	}
	if it.cur, err = s.cursor(opts.Reverse); err != nil {
		return nil, err
	}
	it.Rewind()
	return it, nil
}

func (e *kvEngine) BeforeTxBegin()   {}
func (e *kvEngine) AfterTxCommit()   {}
func (e *kvEngine) AfterTxRollback() {}

// BeginBulkLoad 批量导入期间不做每次写入的 sync
func (e *kvEngine) BeginBulkLoad() {
	e.bulk.Store(true)
}

func (e *kvEngine) EndBulkLoad() error {
	e.bulk.Store(false)
	return e.Flush()
}

func (e *kvEngine) Checkpoint(dir string) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	cp, ok := s.(kvCheckpointer)
	if !ok {
		return errors.Wrapf(ErrCheckpointNotSupported, "%s", e.opts.Algorithm)
	}
	return cp.checkpoint(dir)
}

// kvIterator 在 kvCursor 上加边界和数量限制
type kvIterator struct {
	cur       kvCursor
	reverse   bool
	lower     []byte
	upper     []byte
	hasLower  bool
	hasUpper  bool
	lowerIncl bool
	upperIncl bool
	limit     int
	count     int
	done      bool
	err       error
	key       any
	decoded   bool
}

func (it *kvIterator) Rewind() {
	it.reset()
	switch {
	case !it.reverse && it.hasLower:
		it.cur.seek(it.lower)
	case it.reverse && it.hasUpper:
		it.cur.seek(it.upper)
	default:
		it.cur.first()
	}
	it.settle()
}

func (it *kvIterator) Seek(k any) {
	it.reset()
	enc, err := EncodeKey(k)
	if err != nil {
		it.err = err
		it.done = true
		return
	}
	// 不能越过起点
	if !it.reverse && it.hasLower && bytes.Compare(enc, it.lower) < 0 {
		enc = it.lower
	}
	if it.reverse && it.hasUpper && bytes.Compare(enc, it.upper) > 0 {
		enc = it.upper
	}
	it.cur.seek(enc)
	it.settle()
}

func (it *kvIterator) reset() {
	it.count = 0
	it.done = false
	it.decoded = false
}

func (it *kvIterator) Next() {
	it.cur.next()
	it.count++
	it.decoded = false
	it.settle()
}

// settle 跳过起点上不包含的 key，超过终点就结束
func (it *kvIterator) settle() {
	for it.cur.valid() {
		k := it.cur.key()
		if it.beforeStart(k) {
			it.cur.next()
			continue
		}
		if it.pastEnd(k) {
			it.done = true
		}
		return
	}
}

func (it *kvIterator) beforeStart(k []byte) bool {
	if !it.reverse {
		if !it.hasLower {
			return false
		}
		c := bytes.Compare(k, it.lower)
		return c < 0 || (c == 0 && !it.lowerIncl)
	}
	if !it.hasUpper {
		return false
	}
	c := bytes.Compare(k, it.upper)
	return c > 0 || (c == 0 && !it.upperIncl)
}

func (it *kvIterator) pastEnd(k []byte) bool {
	if !it.reverse {
		if !it.hasUpper {
			return false
		}
		c := bytes.Compare(k, it.upper)
		return c > 0 || (c == 0 && !it.upperIncl)
	}
	if !it.hasLower {
		return false
	}
	c := bytes.Compare(k, it.lower)
	return c < 0 || (c == 0 && !it.lowerIncl)
}

func (it *kvIterator) Valid() bool {
	if it.done || it.err != nil || !it.cur.valid() {
		return false
	}
	return it.limit <= 0 || it.count < it.limit
}

func (it *kvIterator) Key() any {
	if !it.decoded {
		k, err := DecodeKey(it.cur.key())
		if err != nil {
			it.err = err
		}
		it.key, it.decoded = k, true
	}
	return it.key
}

func (it *kvIterator) Value() []byte {
	return it.cur.value()
}

func (it *kvIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cur.err()
}

func (it *kvIterator) Close() {
	it.cur.close()
}
