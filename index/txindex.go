package index

import (
	"context"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/tx"
)

func (ix *Index) BeginTx() {
	ix.engine.BeforeTxBegin()
}

func (ix *Index) RollbackChanges(*tx.IndexChanges) {
	ix.engine.AfterTxRollback()
}

// CommitChanges 在写锁下回放事务日志：先清空，再按键回放，最后处理不限定键的删除
func (ix *Index) CommitChanges(ctx context.Context, changes *tx.IndexChanges) (err error) {
	defer func() { ix.metrics.commit(ix.name, err) }()
	if err := ix.checkAccess(ctx); err != nil {
		return err
	}
	if err := ix.beginWrite(ctx); err != nil {
		return err
	}
	defer ix.modLock.release()

	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	defer ix.engine.AfterTxCommit()

	if changes.Cleared() {
		if err := ix.engine.Clear(); err != nil {
			return err
		}
	}
	err = changes.Each(func(kc *tx.KeyChanges) error {
		for _, e := range kc.Entries {
			switch e.Op {
			case tx.OpPut:
				if err := ix.strategy.put(ix, kc.Key, e.Value, changes); err != nil {
					return err
				}
				ix.metrics.put(ix.name)
			case tx.OpRemove:
				if _, err := ix.strategy.remove(ix, kc.Key, e.Value); err != nil {
					return err
				}
				ix.metrics.remove(ix.name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range changes.Wildcard() {
		if _, err := ix.removeEverywhere(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// TxIndex 事务视图：写操作记录到事务日志里，读操作合并日志和已提交的数据
// 事务为 nil 时直接访问索引
type TxIndex struct {
	ix *Index
}

func NewTxIndex(ix *Index) *TxIndex {
	return &TxIndex{ix: ix}
}

func (t *TxIndex) Index() *Index { return t.ix }

func (t *TxIndex) Name() string { return t.ix.name }

// merged 键 k 上合并之后的值，k 是引擎里的键
func (t *TxIndex) merged(changes *tx.IndexChanges, k any) ([]data.RID, error) {
	var base []data.RID
	if changes == nil || !changes.Cleared() {
		var err error
		if base, err = t.ix.read(k); err != nil {
			return nil, err
		}
	}
	if changes == nil {
		return base, nil
	}
	return changes.Apply(k, base, t.ix.strategy.single()), nil
}

func (t *TxIndex) Put(ctx context.Context, trx *tx.Transaction, k any, v data.Identifiable) error {
	if trx == nil {
		return t.ix.Put(ctx, k, v)
	}
	if err := t.ix.checkAccess(ctx); err != nil {
		return err
	}
	rid, err := data.ResolveIdentity(ctx, v)
	if err != nil {
		return err
	}
	k, err = t.ix.prepareKey(k, true)
	if err != nil {
		return err
	}
	changes, err := trx.Enlist(t.ix)
	if err != nil {
		return err
	}
	s, unique := t.ix.strategy.(uniqueValues)
	for _, wk := range t.ix.strategy.writeKeys(k) {
		if unique && s.check {
			t.ix.rwLock.RLock()
			cur, err := t.merged(changes, wk)
			t.ix.rwLock.RUnlock()
			if err != nil {
				return err
			}
			if len(cur) > 0 && cur[0] != rid {
				t.ix.metrics.duplicate(t.ix.name)
				return &DuplicateKeyError{Index: t.ix.name, Key: wk, Existing: cur[0], Value: rid}
			}
		}
		if err := changes.Add(wk, tx.OpPut, rid); err != nil {
			return err
		}
	}
	return nil
}

// Remove 删除键上的值 v
func (t *TxIndex) Remove(ctx context.Context, trx *tx.Transaction, k any, v data.Identifiable) error {
	if trx == nil {
		_, err := t.ix.Remove(ctx, k, v)
		return err
	}
	return t.record(ctx, trx, k, v.Identity())
}

// RemoveKey 删除键和它的所有值
func (t *TxIndex) RemoveKey(ctx context.Context, trx *tx.Transaction, k any) error {
	if trx == nil {
		_, err := t.ix.RemoveKey(ctx, k)
		return err
	}
	return t.record(ctx, trx, k, data.NullRID)
}

func (t *TxIndex) record(ctx context.Context, trx *tx.Transaction, k any, rid data.RID) error {
	if err := t.ix.checkAccess(ctx); err != nil {
		return err
	}
	k, err := t.ix.prepareKey(k, false)
	if err != nil {
		return err
	}
	changes, err := trx.Enlist(t.ix)
	if err != nil {
		return err
	}
	for _, wk := range t.ix.strategy.writeKeys(k) {
		if err := changes.Add(wk, tx.OpRemove, rid); err != nil {
			return err
		}
	}
	return nil
}

// RemoveValue 从所有键上删除 v
func (t *TxIndex) RemoveValue(ctx context.Context, trx *tx.Transaction, v data.Identifiable) error {
	if trx == nil {
		_, err := t.ix.RemoveValue(ctx, v)
		return err
	}
	if err := t.ix.checkAccess(ctx); err != nil {
		return err
	}
	changes, err := trx.Enlist(t.ix)
	if err != nil {
		return err
	}
	return changes.AddWildcard(v.Identity())
}

func (t *TxIndex) Clear(ctx context.Context, trx *tx.Transaction) error {
	if trx == nil {
		return t.ix.Clear(ctx)
	}
	if err := t.ix.checkAccess(ctx); err != nil {
		return err
	}
	changes, err := trx.Enlist(t.ix)
	if err != nil {
		return err
	}
	return changes.Clear()
}

// Get 合并事务日志之后键上的值
func (t *TxIndex) Get(ctx context.Context, trx *tx.Transaction, k any) ([]data.RID, error) {
	changes := t.changes(trx)
	if changes == nil {
		return t.ix.Get(ctx, k)
	}
	if err := t.ix.checkAccess(ctx); err != nil {
		return nil, err
	}
	k, err := t.ix.prepareKey(k, false)
	if err != nil {
		return nil, err
	}
	t.ix.rwLock.RLock()
	defer t.ix.rwLock.RUnlock()
	return t.merged(changes, t.ix.strategy.readKey(k))
}

func (t *TxIndex) Contains(ctx context.Context, trx *tx.Transaction, k any) (bool, error) {
	rids, err := t.Get(ctx, trx, k)
	return len(rids) > 0, err
}

func (t *TxIndex) changes(trx *tx.Transaction) *tx.IndexChanges {
	if trx == nil {
		return nil
	}
	return trx.IndexChanges(t.ix.name)
}
