package docindex

import (
	"context"
	"slices"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/definition"
	"github.com/Hain2000/docindex/index"
	"github.com/Hain2000/docindex/key"
	"github.com/Hain2000/docindex/tx"
	"github.com/cockroachdb/errors"
)

// Versioned 带版本号的记录，删除时用来检查并发修改
type Versioned interface {
	Version() int64
}

// VersionChecker 查询记录当前保存的版本
type VersionChecker interface {
	CurrentVersion(ctx context.Context, rid data.RID) (int64, bool, error)
}

// recordIndexes 记录所在类和簇上的自动索引
func (m *Manager) recordIndexes(r definition.Record) []*index.Index {
	var out []*index.Index
	for _, ix := range m.ClassIndexes(r.Class()) {
		if clusters := ix.Clusters(); len(clusters) > 0 && !slices.Contains(clusters, r.Cluster()) {
			continue
		}
		out = append(out, ix)
	}
	return out
}

// OnCreate 新记录写入所有相关的索引，trx 为 nil 时直接写索引
func (m *Manager) OnCreate(ctx context.Context, trx *tx.Transaction, r definition.Record) error {
	for _, ix := range m.recordIndexes(r) {
		v, err := definition.Extract(ix.Definition(), r)
		if err != nil {
			return errors.Wrapf(err, "index %s", ix.Name())
		}
		t := index.NewTxIndex(ix)
		for _, k := range definition.Flatten(v) {
			if err := t.Put(ctx, trx, k, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnUpdate 只处理修改过的字段涉及的索引，旧键删除，新键写入
func (m *Manager) OnUpdate(ctx context.Context, trx *tx.Transaction, r definition.Record) error {
	dirty := r.DirtyFields()
	if len(dirty) == 0 {
		return nil
	}
	for _, ix := range m.recordIndexes(r) {
		def := ix.Definition()
		if !definition.Touches(def, dirty) {
			continue
		}
		before, err := definition.ExtractOriginal(def, r)
		if err != nil {
			return errors.Wrapf(err, "index %s", ix.Name())
		}
		after, err := definition.Extract(def, r)
		if err != nil {
			return errors.Wrapf(err, "index %s", ix.Name())
		}
		removed, added := keyDelta(definition.Flatten(before), definition.Flatten(after))

		t := index.NewTxIndex(ix)
		for _, k := range removed {
			if err := t.Remove(ctx, trx, k, r); err != nil {
				return err
			}
		}
		for _, k := range added {
			if err := t.Put(ctx, trx, k, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnDelete 删除记录的所有键，记录在读出之后被别人改过时返回 ErrConcurrentModification
func (m *Manager) OnDelete(ctx context.Context, trx *tx.Transaction, r definition.Record) error {
	if err := m.checkVersion(ctx, r); err != nil {
		return err
	}
	for _, ix := range m.recordIndexes(r) {
		v, err := definition.ExtractOriginal(ix.Definition(), r)
		if err != nil {
			return errors.Wrapf(err, "index %s", ix.Name())
		}
		t := index.NewTxIndex(ix)
		for _, k := range definition.Flatten(v) {
			if err := t.Remove(ctx, trx, k, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) checkVersion(ctx context.Context, r definition.Record) error {
	vr, ok := r.(Versioned)
	if !ok || m.options.Versions == nil {
		return nil
	}
	rid := r.Identity()
	if !rid.IsPersistent() {
		return nil
	}
	cur, found, err := m.options.Versions.CurrentVersion(ctx, rid)
	if err != nil {
		return err
	}
	if found && cur != vr.Version() {
		return errors.Wrapf(index.ErrConcurrentModification, "record %s version %d, stored %d", rid, vr.Version(), cur)
	}
	return nil
}

// keyDelta 返回 before 里有 after 里没有的键，和 after 里有 before 里没有的键
func keyDelta(before, after []any) (removed, added []any) {
	has := func(keys []any, k any) bool {
		return slices.ContainsFunc(keys, func(o any) bool { return key.Compare(o, k) == 0 })
	}
	for _, k := range before {
		if !has(after, k) {
			removed = append(removed, k)
		}
	}
	for _, k := range after {
		if !has(before, k) {
			added = append(added, k)
		}
	}
	return removed, added
}
