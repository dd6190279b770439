package tx

import (
	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/key"
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

var ErrChangesNotWritable = errors.New("index changes are being committed and cannot be modified")

type Operation byte

const (
	OpPut Operation = iota + 1
	OpRemove
)

func (op Operation) String() string {
	if op == OpPut {
		return "PUT"
	}
	return "REMOVE"
}

// Entry 事务日志里的一条操作，REMOVE 的值为 data.NullRID 表示删除整个键
type Entry struct {
	Op    Operation
	Value data.RID
}

// KeyChanges 一个键上按顺序记录的操作
type KeyChanges struct {
	Key     any
	Entries []Entry
}

// State 事务日志的状态
type State int8

const (
	StateIdle State = iota
	StateRecording
	StateCommitting
	StateDone
)

// KeyState 键上的某个值在本事务里的状态
type KeyState int8

const (
	// Absent 本事务没有动过这个值
	Absent KeyState = iota
	// Present 本事务写入了这个值
	Present
	// RemovedInTx 本事务删除了这个值
	RemovedInTx
)

// IndexChanges 一个事务对一个索引的修改，按键有序保存
type IndexChanges struct {
	name     string
	state    State
	cleared  bool
	keys     *btree.BTreeG[*KeyChanges]
	order    []*KeyChanges // 提交时按第一次修改的顺序回放
	wildcard []Entry       // 不限定键的删除
}

func lessChanges(a, b *KeyChanges) bool {
	return key.CompareStrict(a.Key, b.Key) < 0
}

func NewIndexChanges(name string) *IndexChanges {
	return &IndexChanges{
		name: name,
		keys: btree.NewG[*KeyChanges](16, lessChanges),
	}
}

func (c *IndexChanges) Name() string  { return c.name }
func (c *IndexChanges) State() State  { return c.state }
func (c *IndexChanges) Cleared() bool { return c.cleared }

func (c *IndexChanges) writable() error {
	if c.state == StateCommitting || c.state == StateDone {
		return errors.Wrapf(ErrChangesNotWritable, "index %s", c.name)
	}
	c.state = StateRecording
	return nil
}

// Add 在键 k 上追加一条操作
func (c *IndexChanges) Add(k any, op Operation, v data.RID) error {
	if err := c.writable(); err != nil {
		return err
	}
	kc, ok := c.keys.Get(&KeyChanges{Key: k})
	if !ok {
		kc = &KeyChanges{Key: k}
		c.keys.ReplaceOrInsert(kc)
		c.order = append(c.order, kc)
	}
	kc.Entries = append(kc.Entries, Entry{Op: op, Value: v})
	return nil
}

// AddWildcard 记录一个不限定键的删除，v 在所有键上都会被删掉
func (c *IndexChanges) AddWildcard(v data.RID) error {
	if err := c.writable(); err != nil {
		return err
	}
	c.wildcard = append(c.wildcard, Entry{Op: OpRemove, Value: v})
	return nil
}

// Clear 标记索引被清空，之前记录的操作全部丢弃
func (c *IndexChanges) Clear() error {
	if err := c.writable(); err != nil {
		return err
	}
	c.cleared = true
	c.keys.Clear(false)
	c.order = nil
	c.wildcard = nil
	return nil
}

func (c *IndexChanges) IsEmpty() bool {
	return !c.cleared && c.keys.Len() == 0 && len(c.wildcard) == 0
}

// ChangesPerKey 没有记录返回 nil
func (c *IndexChanges) ChangesPerKey(k any) *KeyChanges {
	kc, ok := c.keys.Get(&KeyChanges{Key: k})
	if !ok {
		return nil
	}
	return kc
}

// Touched 本事务有没有直接修改过这个键
func (c *IndexChanges) Touched(k any) bool {
	return c.keys.Has(&KeyChanges{Key: k})
}

func (c *IndexChanges) Wildcard() []Entry {
	return c.wildcard
}

// RemovedByWildcard v 是否被不限定键的删除删掉
func (c *IndexChanges) RemovedByWildcard(v data.RID) bool {
	for _, e := range c.wildcard {
		if e.Value == v {
			return true
		}
	}
	return false
}

// Each 按第一次修改的顺序遍历
func (c *IndexChanges) Each(fn func(kc *KeyChanges) error) error {
	for _, kc := range c.order {
		if err := fn(kc); err != nil {
			return err
		}
	}
	return nil
}

// Len 被修改过的键的数量
func (c *IndexChanges) Len() int { return c.keys.Len() }

// HigherKey 严格大于 k 的第一个键
func (c *IndexChanges) HigherKey(k any) (any, bool) {
	var (
		found any
		ok    bool
	)
	c.keys.AscendGreaterOrEqual(&KeyChanges{Key: k}, func(kc *KeyChanges) bool {
		if key.CompareStrict(kc.Key, k) == 0 {
			return true
		}
		found, ok = kc.Key, true
		return false
	})
	return found, ok
}

// LowerKey 严格小于 k 的第一个键
func (c *IndexChanges) LowerKey(k any) (any, bool) {
	var (
		found any
		ok    bool
	)
	c.keys.DescendLessOrEqual(&KeyChanges{Key: k}, func(kc *KeyChanges) bool {
		if key.CompareStrict(kc.Key, k) == 0 {
			return true
		}
		found, ok = kc.Key, true
		return false
	})
	return found, ok
}

// FirstAndLastKeys 返回范围内被修改过的第一个和最后一个键
// 不限制的一侧用 key.AlwaysLess / key.AlwaysGreater
func (c *IndexChanges) FirstAndLastKeys(from any, fromInclusive bool, to any, toInclusive bool) (first, last any, ok bool) {
	inRange := func(k any) bool {
		cf := key.Compare(k, from)
		if cf < 0 || (cf == 0 && !fromInclusive) {
			return false
		}
		ct := key.Compare(k, to)
		return ct < 0 || (ct == 0 && toInclusive)
	}

	var hasFirst, hasLast bool
	c.keys.AscendGreaterOrEqual(&KeyChanges{Key: from}, func(kc *KeyChanges) bool {
		cf := key.Compare(kc.Key, from)
		if cf == 0 && !fromInclusive {
			return true
		}
		if inRange(kc.Key) {
			first, hasFirst = kc.Key, true
		}
		return false
	})
	if !hasFirst {
		return nil, nil, false
	}
	c.keys.DescendLessOrEqual(&KeyChanges{Key: to}, func(kc *KeyChanges) bool {
		ct := key.Compare(kc.Key, to)
		if ct == 0 && !toInclusive {
			return true
		}
		if inRange(kc.Key) {
			last, hasLast = kc.Key, true
		}
		return false
	})
	if !hasLast || key.CompareStrict(first, last) > 0 {
		return nil, nil, false
	}
	return first, last, true
}

// Apply 把本事务对键 k 的修改回放到 base 上，返回合并之后的值
// single 为 true 时只保留一个值（唯一索引、字典），否则是有序集合
func (c *IndexChanges) Apply(k any, base []data.RID, single bool) []data.RID {
	values := make([]data.RID, 0, len(base)+1)
	if !c.cleared {
		values = append(values, base...)
	}
	if kc := c.ChangesPerKey(k); kc != nil {
		for _, e := range kc.Entries {
			switch {
			case e.Op == OpPut && single:
				values = append(values[:0], e.Value)
			case e.Op == OpPut:
				values, _ = data.AddRID(values, e.Value)
			case e.Value.IsNull():
				values = values[:0]
			default:
				values, _ = data.RemoveRID(values, e.Value)
			}
		}
	}
	for _, e := range c.wildcard {
		values, _ = data.RemoveRID(values, e.Value)
	}
	return values
}

// KeyState 查询键 k 上的值 v 在本事务里的状态
func (c *IndexChanges) KeyState(k any, v data.RID) KeyState {
	state := Absent
	if c.cleared {
		state = RemovedInTx
	}
	if kc := c.ChangesPerKey(k); kc != nil {
		for _, e := range kc.Entries {
			switch {
			case e.Op == OpPut && e.Value == v:
				state = Present
			case e.Op == OpRemove && (e.Value.IsNull() || e.Value == v):
				state = RemovedInTx
			}
		}
	}
	// 不限定键的删除在按键的操作之后生效
	if c.RemovedByWildcard(v) {
		state = RemovedInTx
	}
	return state
}

func (c *IndexChanges) beginCommit() {
	c.state = StateCommitting
}

func (c *IndexChanges) finish() {
	c.state = StateDone
}
