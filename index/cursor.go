package index

import (
	"context"
	"sort"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/key"
	"github.com/Hain2000/docindex/tx"
	"github.com/cockroachdb/errors"
)

// Entry 游标返回的一个键值对
type Entry struct {
	Key   any
	Value data.RID
}

type cursorConfig struct {
	limit int
}

type CursorOption func(*cursorConfig)

// Limit 最多返回 n 个键值对
func Limit(n int) CursorOption {
	return func(c *cursorConfig) { c.limit = n }
}

// entrySource 按键有序产生键值对
type entrySource interface {
	next() (Entry, bool, error)
	close()
}

type peekable struct {
	src    entrySource
	head   Entry
	has    bool
	loaded bool
}

func (p *peekable) peek() (Entry, bool, error) {
	if !p.loaded {
		e, ok, err := p.src.next()
		if err != nil {
			return Entry{}, false, err
		}
		p.head, p.has, p.loaded = e, ok, true
	}
	return p.head, p.has, nil
}

func (p *peekable) take() { p.loaded = false }

// Cursor 合并事务日志和已提交数据的游标
// 每次 Next 都会检查索引有没有被重建，并且只在这一步持有读锁
type Cursor struct {
	ix      *Index
	version int64
	asc     bool
	limit   int
	count   int

	pending *peekable // 事务里修改过的键
	backed  *peekable // 引擎里没有被事务修改过的键

	cur    Entry
	err    error
	closed bool
}

func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.limit > 0 && c.count >= c.limit {
		return false
	}
	if c.ix.RebuildVersion() != c.version {
		c.err = errors.Wrapf(ErrRebuildVersionChanged, "index %s", c.ix.name)
		return false
	}

	c.ix.rwLock.RLock()
	defer c.ix.rwLock.RUnlock()
	e, ok, err := c.pull()
	if err != nil {
		c.err = err
		return false
	}
	if !ok {
		return false
	}
	c.cur = e
	c.count++
	return true
}

func (c *Cursor) pull() (Entry, bool, error) {
	var (
		pe, be     Entry
		pHas, bHas bool
		err        error
	)
	if c.pending != nil {
		if pe, pHas, err = c.pending.peek(); err != nil {
			return Entry{}, false, err
		}
	}
	if c.backed != nil {
		if be, bHas, err = c.backed.peek(); err != nil {
			return Entry{}, false, err
		}
	}
	switch {
	case !pHas && !bHas:
		return Entry{}, false, nil
	case !bHas:
		c.pending.take()
		return pe, true, nil
	case !pHas:
		c.backed.take()
		return be, true, nil
	}
	cmp := key.CompareStrict(pe.Key, be.Key)
	if !c.asc {
		cmp = -cmp
	}
	// 相同的键事务里的先返回
	if cmp <= 0 {
		c.pending.take()
		return pe, true, nil
	}
	c.backed.take()
	return be, true, nil
}

func (c *Cursor) Entry() Entry    { return c.cur }
func (c *Cursor) Key() any        { return c.cur.Key }
func (c *Cursor) Value() data.RID { return c.cur.Value }
func (c *Cursor) Err() error      { return c.err }

func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.pending != nil {
		c.pending.src.close()
	}
	if c.backed != nil {
		c.backed.src.close()
	}
}

// Collect 读出剩下的所有键值对并关闭游标
func (c *Cursor) Collect() ([]Entry, error) {
	defer c.Close()
	var out []Entry
	for c.Next() {
		out = append(out, c.cur)
	}
	return out, c.err
}

// txSource 遍历事务日志里范围内的键，值是合并之后的结果
type txSource struct {
	t       *TxIndex
	changes *tx.IndexChanges
	asc     bool
	cur     any
	end     any
	has     bool
	queue   []Entry
}

func newTxSource(t *TxIndex, changes *tx.IndexChanges, from any, fromIncl bool, to any, toIncl bool, asc bool) *txSource {
	s := &txSource{t: t, changes: changes, asc: asc}
	first, last, ok := changes.FirstAndLastKeys(from, fromIncl, to, toIncl)
	if !ok {
		return s
	}
	s.has = true
	s.cur, s.end = first, last
	if !asc {
		s.cur, s.end = last, first
	}
	return s
}

func (s *txSource) next() (Entry, bool, error) {
	for len(s.queue) == 0 {
		if !s.has {
			return Entry{}, false, nil
		}
		k := s.cur
		if key.CompareStrict(k, s.end) == 0 {
			s.has = false
		} else if s.asc {
			s.cur, s.has = s.changes.HigherKey(k)
		} else {
			s.cur, s.has = s.changes.LowerKey(k)
		}
		rids, err := s.t.merged(s.changes, k)
		if err != nil {
			return Entry{}, false, err
		}
		s.queue = entries(k, rids)
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true, nil
}

func (s *txSource) close() {}

// backedSource 引擎里的数据，跳过事务修改过的键和被删掉的值
type backedSource struct {
	it      engine.Iterator
	changes *tx.IndexChanges
	queue   []Entry
}

func (s *backedSource) next() (Entry, bool, error) {
	for len(s.queue) == 0 {
		if !s.it.Valid() {
			return Entry{}, false, s.it.Err()
		}
		k := s.it.Key()
		if s.changes != nil && s.changes.Touched(k) {
			s.it.Next()
			continue
		}
		_, rids, err := data.DecodeContainer(s.it.Value())
		if err != nil {
			return Entry{}, false, errors.Wrapf(err, "key %v", k)
		}
		s.it.Next()
		for _, r := range rids {
			if s.changes != nil && s.changes.RemovedByWildcard(r) {
				continue
			}
			s.queue = append(s.queue, Entry{Key: k, Value: r})
		}
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true, nil
}

func (s *backedSource) close() { s.it.Close() }

// keysSource 按给定的键逐个读取
type keysSource struct {
	t       *TxIndex
	changes *tx.IndexChanges
	keys    []any
	queue   []Entry
}

func (s *keysSource) next() (Entry, bool, error) {
	for len(s.queue) == 0 {
		if len(s.keys) == 0 {
			return Entry{}, false, nil
		}
		k := s.keys[0]
		s.keys = s.keys[1:]
		rids, err := s.t.merged(s.changes, k)
		if err != nil {
			return Entry{}, false, err
		}
		s.queue = entries(k, rids)
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true, nil
}

func (s *keysSource) close() {}

func entries(k any, rids []data.RID) []Entry {
	out := make([]Entry, len(rids))
	for i, r := range rids {
		out[i] = Entry{Key: k, Value: r}
	}
	return out
}

func (t *TxIndex) newCursor(asc bool, opts []CursorOption) *Cursor {
	cfg := cursorConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	return &Cursor{
		ix:      t.ix,
		version: t.ix.RebuildVersion(),
		asc:     asc,
		limit:   cfg.limit,
	}
}

// boundKey 范围的边界转换成引擎里的键，组合键用哨兵补齐
func (t *TxIndex) boundKey(k any, inclusive, from bool) (any, error) {
	if k == nil {
		if from {
			return key.AlwaysLess, nil
		}
		return key.AlwaysGreater, nil
	}
	k, err := t.ix.prepareKey(k, false)
	if err != nil {
		return nil, err
	}
	k = t.ix.strategy.readKey(k)
	// 组合键边界至少补一个哨兵，手动索引的定义只有一个字段，部分键也要能覆盖更长的键
	n := t.ix.paramCount()
	ck, ok := k.(*key.CompositeKey)
	if !ok && n > 1 {
		ck, ok = key.NewCompositeKey(k), true
	}
	if ok {
		k, n = ck, max(n, ck.Len()+1)
	}
	if from {
		return key.EnhanceFrom(k, inclusive, n), nil
	}
	return key.EnhanceTo(k, inclusive, n), nil
}

// rangeCursor from 和 to 已经是引擎里的键，哨兵表示不限制
func (t *TxIndex) rangeCursor(ctx context.Context, trx *tx.Transaction, from any, fromIncl bool, to any, toIncl bool, asc bool, opts []CursorOption) (*Cursor, error) {
	if err := t.ix.checkAccess(ctx); err != nil {
		return nil, err
	}
	c := t.newCursor(asc, opts)
	changes := t.changes(trx)
	if changes != nil {
		c.pending = &peekable{src: newTxSource(t, changes, from, fromIncl, to, toIncl, asc)}
		if changes.Cleared() {
			return c, nil
		}
	}

	var b engine.Bounds
	if _, ok := from.(key.AlwaysLessKey); !ok {
		b.From, b.FromInclusive, b.HasFrom = from, fromIncl, true
	}
	if _, ok := to.(key.AlwaysGreaterKey); !ok {
		b.To, b.ToInclusive, b.HasTo = to, toIncl, true
	}
	t.ix.rwLock.RLock()
	it, err := t.ix.engine.Range(b, engine.IteratorOptions{Reverse: !asc})
	t.ix.rwLock.RUnlock()
	if err != nil {
		return nil, err
	}
	c.backed = &peekable{src: &backedSource{it: it, changes: changes}}
	return c, nil
}

// Stream 遍历整个索引
func (t *TxIndex) Stream(ctx context.Context, trx *tx.Transaction, asc bool, opts ...CursorOption) (*Cursor, error) {
	return t.rangeCursor(ctx, trx, key.AlwaysLess, true, key.AlwaysGreater, true, asc, opts)
}

// Between from 或 to 为 nil 表示这一侧不限制
func (t *TxIndex) Between(ctx context.Context, trx *tx.Transaction, from any, fromInclusive bool, to any, toInclusive bool, asc bool, opts ...CursorOption) (*Cursor, error) {
	f, err := t.boundKey(from, fromInclusive, true)
	if err != nil {
		return nil, err
	}
	l, err := t.boundKey(to, toInclusive, false)
	if err != nil {
		return nil, err
	}
	return t.rangeCursor(ctx, trx, f, fromInclusive, l, toInclusive, asc, opts)
}

// Major 大于(等于) from 的键
func (t *TxIndex) Major(ctx context.Context, trx *tx.Transaction, from any, inclusive bool, asc bool, opts ...CursorOption) (*Cursor, error) {
	return t.Between(ctx, trx, from, inclusive, nil, true, asc, opts...)
}

// Minor 小于(等于) to 的键
func (t *TxIndex) Minor(ctx context.Context, trx *tx.Transaction, to any, inclusive bool, asc bool, opts ...CursorOption) (*Cursor, error) {
	return t.Between(ctx, trx, nil, true, to, inclusive, asc, opts...)
}

// Entries 按给定的键查询，重复的键只返回一次
func (t *TxIndex) Entries(ctx context.Context, trx *tx.Transaction, keys []any, asc bool, opts ...CursorOption) (*Cursor, error) {
	if err := t.ix.checkAccess(ctx); err != nil {
		return nil, err
	}
	prepared := make([]any, 0, len(keys))
	for _, k := range keys {
		pk, err := t.ix.prepareKey(k, false)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, t.ix.strategy.readKey(pk))
	}
	sort.SliceStable(prepared, func(i, j int) bool {
		if asc {
			return key.CompareStrict(prepared[i], prepared[j]) < 0
		}
		return key.CompareStrict(prepared[i], prepared[j]) > 0
	})
	uniq := prepared[:0]
	for _, k := range prepared {
		if len(uniq) > 0 && key.CompareStrict(uniq[len(uniq)-1], k) == 0 {
			continue
		}
		uniq = append(uniq, k)
	}

	c := t.newCursor(asc, opts)
	c.pending = &peekable{src: &keysSource{t: t, changes: t.changes(trx), keys: uniq}}
	return c, nil
}
