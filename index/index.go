package index

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/definition"
	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/key"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-hclog"
)

type Type string

const (
	Unique     Type = "UNIQUE"
	NotUnique  Type = "NOTUNIQUE"
	Dictionary Type = "DICTIONARY"
	FullText   Type = "FULLTEXT"
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(s))
	switch t {
	case Unique, NotUnique, Dictionary, FullText:
		return t, nil
	}
	return "", errors.Wrapf(ErrUnknownIndexType, "%q", s)
}

// RecordSource 重建索引时按 cluster 扫描记录
type RecordSource interface {
	Scan(ctx context.Context, cluster string, fn func(r definition.Record) error) error
}

// Config 创建索引的参数
type Config struct {
	Name string
	Type Type
	// Definition 为 nil 表示手动索引，键的类型由第一次写入推断
	Definition definition.Definition
	Clusters   []string
	Collate    string
	Metadata   map[string]string
}

// Options 索引依赖的组件，都可以为空
type Options struct {
	Logger  hclog.Logger
	Metrics *Metrics
	Source  RecordSource
}

// Index 二级索引：键到记录 RID 的映射，数据保存在 engine 里
type Index struct {
	name     string
	typ      Type
	clusters []string
	collate  key.Collate
	metadata map[string]string
	version  atomic.Int64

	defLock    sync.RWMutex
	definition definition.Definition

	engine   engine.Engine
	strategy valueStrategy

	rwLock  *sync.RWMutex // 读共享，写独占
	modLock *modificationLock

	rebuilding     atomic.Pointer[rebuildToken]
	rebuildVersion atomic.Int64
	unusable       atomic.Bool

	source  RecordSource
	logger  hclog.Logger
	metrics *Metrics
	opts    Options
}

func New(eng engine.Engine, opts Options) *Index {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Index{
		engine:   eng,
		collate:  key.DefaultCollate,
		rwLock:   new(sync.RWMutex),
		modLock:  newModificationLock(),
		source:   opts.Source,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		opts:     opts,
		strategy: multiValues{},
	}
}

func (ix *Index) configure(name string, typ Type, def definition.Definition, clusters []string, collate string, metadata map[string]string) error {
	if name == "" {
		return ErrIndexNameIsEmpty
	}
	typ, err := ParseType(string(typ))
	if err != nil {
		return err
	}
	c, err := key.CollateByName(collate)
	if err != nil {
		return err
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	ix.name = name
	ix.typ = typ
	ix.definition = def
	ix.clusters = append([]string(nil), clusters...)
	ix.collate = c
	ix.metadata = meta
	ix.strategy = newStrategy(typ, meta)
	ix.logger = ix.opts.Logger.Named(name)
	return nil
}

// Create 按配置创建一个新的空索引
func (ix *Index) Create(ctx context.Context, cfg Config) error {
	if err := ix.configure(cfg.Name, cfg.Type, cfg.Definition, cfg.Clusters, cfg.Collate, cfg.Metadata); err != nil {
		return err
	}
	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	if err := ix.engine.Create(ctx); err != nil {
		return errors.Wrapf(err, "create index %s", ix.name)
	}
	ix.version.Store(1)
	ix.logger.Debug("index created", "type", ix.typ, "algorithm", ix.engine.Algorithm())
	return nil
}

func (ix *Index) Name() string          { return ix.name }
func (ix *Index) Type() Type            { return ix.typ }
func (ix *Index) Engine() engine.Engine { return ix.engine }
func (ix *Index) Collate() key.Collate  { return ix.collate }
func (ix *Index) RebuildVersion() int64 { return ix.rebuildVersion.Load() }
func (ix *Index) IsRebuilding() bool    { return ix.rebuilding.Load() != nil }
func (ix *Index) Unusable() bool        { return ix.unusable.Load() }
func (ix *Index) Version() int64        { return ix.version.Load() }

// SetSource 设置重建时扫描记录的来源
func (ix *Index) SetSource(src RecordSource) {
	ix.source = src
}

func (ix *Index) Clusters() []string {
	return append([]string(nil), ix.clusters...)
}

func (ix *Index) Metadata() map[string]string {
	out := make(map[string]string, len(ix.metadata))
	for k, v := range ix.metadata {
		out[k] = v
	}
	return out
}

func (ix *Index) Definition() definition.Definition {
	ix.defLock.RLock()
	defer ix.defLock.RUnlock()
	return ix.definition
}

// Automatic 自动索引跟随记录的变化
func (ix *Index) Automatic() bool {
	return definition.IsAutomatic(ix.Definition())
}

// paramCount 组合键的字段数，部分键查询时用来补齐
func (ix *Index) paramCount() int {
	if d := ix.Definition(); d != nil {
		return d.ParamCount()
	}
	return 1
}

// inferDefinition 手动索引第一次写入时按键的类型确定定义
func (ix *Index) inferDefinition(k any) definition.Definition {
	ix.defLock.Lock()
	defer ix.defLock.Unlock()
	if ix.definition == nil {
		ix.definition = definition.NewRuntime(definition.TypeOf(k))
		ix.version.Add(1)
		ix.logger.Debug("key type inferred", "type", definition.TypeOf(k))
	}
	return ix.definition
}

// prepareKey 转换成定义的键类型并做排序规则的转换
func (ix *Index) prepareKey(k any, infer bool) (any, error) {
	if k == nil || key.IsSentinel(k) {
		return k, nil
	}
	d := ix.Definition()
	if d == nil && infer {
		d = ix.inferDefinition(k)
	}
	if d != nil {
		v, err := d.CreateValue(k)
		if err != nil {
			return nil, errors.Wrapf(err, "index %s", ix.name)
		}
		k = v
	}
	return ix.collate.Transform(key.Normalize(k)), nil
}

type rebuildToken struct {
	index string
}

type rebuildCtxKey struct{}

// rebuildCtx 带上重建令牌，重建自己的写操作不会被拦住
func rebuildCtx(ctx context.Context, tok *rebuildToken) context.Context {
	return context.WithValue(ctx, rebuildCtxKey{}, tok)
}

// checkAccess 重建期间只有重建本身可以访问索引
func (ix *Index) checkAccess(ctx context.Context) error {
	if tok := ix.rebuilding.Load(); tok != nil {
		if own, _ := ctx.Value(rebuildCtxKey{}).(*rebuildToken); own == tok {
			return nil
		}
		return errors.Wrapf(ErrRebuildInProgress, "index %s", ix.name)
	}
	if ix.unusable.Load() {
		return errors.Wrapf(ErrIndexUnusable, "index %s", ix.name)
	}
	return nil
}

// beginWrite 拿到写权限之后再检查一次，等待期间可能开始了重建
func (ix *Index) beginWrite(ctx context.Context) error {
	if err := ix.modLock.acquire(); err != nil {
		return errors.Wrapf(err, "index %s", ix.name)
	}
	if err := ix.checkAccess(ctx); err != nil {
		ix.modLock.release()
		return err
	}
	return nil
}

func (ix *Index) read(k any) ([]data.RID, error) {
	b, ok, err := ix.engine.Get(k)
	if err != nil || !ok {
		return nil, err
	}
	_, rids, err := data.DecodeContainer(b)
	if err != nil {
		return nil, errors.Wrapf(err, "index %s key %v", ix.name, k)
	}
	return rids, nil
}

// write 值为空时删除键
func (ix *Index) write(k any, rids []data.RID) error {
	if len(rids) == 0 {
		_, err := ix.engine.Remove(k)
		return err
	}
	return ix.engine.Put(k, data.EncodeContainer(ix.strategy.container(), rids))
}

// Get 返回键上的所有值，唯一索引最多一个
func (ix *Index) Get(ctx context.Context, k any) ([]data.RID, error) {
	if err := ix.checkAccess(ctx); err != nil {
		return nil, err
	}
	k, err := ix.prepareKey(k, false)
	if err != nil {
		return nil, err
	}
	ix.rwLock.RLock()
	defer ix.rwLock.RUnlock()
	return ix.read(ix.strategy.readKey(k))
}

func (ix *Index) Contains(ctx context.Context, k any) (bool, error) {
	rids, err := ix.Get(ctx, k)
	return len(rids) > 0, err
}

// Count 键上值的个数
func (ix *Index) Count(ctx context.Context, k any) (int, error) {
	rids, err := ix.Get(ctx, k)
	return len(rids), err
}

// Put 直接写入，不经过事务
func (ix *Index) Put(ctx context.Context, k any, v data.Identifiable) error {
	if err := ix.checkAccess(ctx); err != nil {
		return err
	}
	rid, err := data.ResolveIdentity(ctx, v)
	if err != nil {
		return err
	}
	k, err = ix.prepareKey(k, true)
	if err != nil {
		return err
	}
	if err := ix.beginWrite(ctx); err != nil {
		return err
	}
	defer ix.modLock.release()

	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	for _, wk := range ix.strategy.writeKeys(k) {
		if err := ix.strategy.put(ix, wk, rid, nil); err != nil {
			return err
		}
	}
	ix.metrics.put(ix.name)
	return nil
}

// Remove 删除键上的值 v
func (ix *Index) Remove(ctx context.Context, k any, v data.Identifiable) (bool, error) {
	return ix.remove(ctx, k, v.Identity())
}

// RemoveKey 删除键和它的所有值
func (ix *Index) RemoveKey(ctx context.Context, k any) (bool, error) {
	return ix.remove(ctx, k, data.NullRID)
}

func (ix *Index) remove(ctx context.Context, k any, rid data.RID) (bool, error) {
	if err := ix.checkAccess(ctx); err != nil {
		return false, err
	}
	k, err := ix.prepareKey(k, false)
	if err != nil {
		return false, err
	}
	if err := ix.beginWrite(ctx); err != nil {
		return false, err
	}
	defer ix.modLock.release()

	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	removed := false
	for _, wk := range ix.strategy.writeKeys(k) {
		ok, err := ix.strategy.remove(ix, wk, rid)
		if err != nil {
			return removed, err
		}
		removed = removed || ok
	}
	if removed {
		ix.metrics.remove(ix.name)
	}
	return removed, nil
}

// RemoveValue 从所有键上删除 v，返回受影响的键的个数
func (ix *Index) RemoveValue(ctx context.Context, v data.Identifiable) (int, error) {
	if err := ix.checkAccess(ctx); err != nil {
		return 0, err
	}
	if err := ix.beginWrite(ctx); err != nil {
		return 0, err
	}
	defer ix.modLock.release()

	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	return ix.removeEverywhere(v.Identity())
}

// removeEverywhere 调用方持有写锁
func (ix *Index) removeEverywhere(rid data.RID) (int, error) {
	it, err := ix.engine.Iterator(engine.IteratorOptions{})
	if err != nil {
		return 0, err
	}
	var keys []any
	for ; it.Valid(); it.Next() {
		_, rids, err := data.DecodeContainer(it.Value())
		if err != nil {
			it.Close()
			return 0, errors.Wrapf(err, "index %s key %v", ix.name, it.Key())
		}
		if data.ContainsRID(rids, rid) {
			keys = append(keys, it.Key())
		}
	}
	err = it.Err()
	it.Close()
	if err != nil {
		return 0, err
	}

	for _, k := range keys {
		if _, err := ix.strategy.remove(ix, k, rid); err != nil {
			return 0, err
		}
	}
	if len(keys) > 0 {
		ix.metrics.remove(ix.name)
	}
	return len(keys), nil
}

// Clear 删除所有的键
func (ix *Index) Clear(ctx context.Context) error {
	if err := ix.checkAccess(ctx); err != nil {
		return err
	}
	if err := ix.beginWrite(ctx); err != nil {
		return err
	}
	defer ix.modLock.release()

	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	return ix.engine.Clear()
}

// KeySize 键的个数
func (ix *Index) KeySize(ctx context.Context) (int64, error) {
	if err := ix.checkAccess(ctx); err != nil {
		return 0, err
	}
	ix.rwLock.RLock()
	defer ix.rwLock.RUnlock()
	return ix.engine.Size()
}

// Size 值的个数，非唯一索引一个键可以有多个值
func (ix *Index) Size(ctx context.Context) (int64, error) {
	if ix.strategy.single() {
		return ix.KeySize(ctx)
	}
	if err := ix.checkAccess(ctx); err != nil {
		return 0, err
	}
	ix.rwLock.RLock()
	defer ix.rwLock.RUnlock()
	it, err := ix.engine.Iterator(engine.IteratorOptions{})
	if err != nil {
		return 0, err
	}
	defer it.Close()
	var n int64
	for ; it.Valid(); it.Next() {
		_, rids, err := data.DecodeContainer(it.Value())
		if err != nil {
			return 0, errors.Wrapf(err, "index %s key %v", ix.name, it.Key())
		}
		n += int64(len(rids))
	}
	return n, it.Err()
}

func (ix *Index) FirstKey(ctx context.Context) (any, bool, error) {
	return ix.edgeKey(ctx, false)
}

func (ix *Index) LastKey(ctx context.Context) (any, bool, error) {
	return ix.edgeKey(ctx, true)
}

func (ix *Index) edgeKey(ctx context.Context, reverse bool) (any, bool, error) {
	if err := ix.checkAccess(ctx); err != nil {
		return nil, false, err
	}
	ix.rwLock.RLock()
	defer ix.rwLock.RUnlock()
	it, err := ix.engine.Iterator(engine.IteratorOptions{Reverse: reverse, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	defer it.Close()
	if !it.Valid() {
		return nil, false, it.Err()
	}
	return it.Key(), true, nil
}

// Freeze 冻结写操作，throwOnWrite 为 true 时写操作直接返回 ErrIndexFrozen，否则等待
func (ix *Index) Freeze(throwOnWrite bool) {
	ix.modLock.freeze(throwOnWrite)
	ix.logger.Debug("index frozen", "throwOnWrite", throwOnWrite)
}

// Release 解除最近一次的 Freeze
func (ix *Index) Release() {
	ix.modLock.unfreeze()
}

func (ix *Index) Frozen() bool { return ix.modLock.frozen() }

func (ix *Index) Flush() error {
	ix.rwLock.RLock()
	defer ix.rwLock.RUnlock()
	return ix.engine.Flush()
}

func (ix *Index) Close() error {
	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	return ix.engine.Close()
}

// Delete 删除索引的所有数据
func (ix *Index) Delete(ctx context.Context) error {
	if err := ix.checkAccess(ctx); err != nil && !errors.Is(err, ErrIndexUnusable) {
		return err
	}
	ix.rwLock.Lock()
	defer ix.rwLock.Unlock()
	if err := ix.engine.Delete(ctx); err != nil {
		return errors.Wrapf(err, "delete index %s", ix.name)
	}
	ix.logger.Debug("index deleted")
	return nil
}
