package docindex

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/index"
	"github.com/Hain2000/docindex/tx"
	"github.com/Hain2000/docindex/utils"
	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

const (
	fileLockName     = "flock"
	indexesDirName   = "indexes"
	enginesDirName   = "engines"
	descriptorSuffix = ".idx"
)

// IndexConfig 创建索引的参数，Algorithm 为空时使用 Options.DefaultAlgorithm
type IndexConfig struct {
	index.Config
	Algorithm string
}

// Manager 管理一个目录下的所有索引
type Manager struct {
	options  Options
	mtx      *sync.RWMutex
	indexes  map[string]*index.Index
	saved    map[string]int64 // 已经保存的描述符版本
	fileLock *flock.Flock
	logger   hclog.Logger
	metrics  *index.Metrics
	node     *snowflake.Node
	cron     *cron.Cron
	closed   bool
}

func Open(options Options) (*Manager, error) {
	// 检查用户配置
	if err := checkOptions(options); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}
	for _, dir := range []string{options.DirPath, filepath.Join(options.DirPath, indexesDirName), filepath.Join(options.DirPath, enginesDirName)} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}

	// 同一个目录只能被一个进程打开
	fileLock := flock.New(filepath.Join(options.DirPath, fileLockName))
	hold, err := fileLock.TryLock()
	if err != nil {
		return nil, err
	}
	if !hold {
		return nil, ErrDatabaseIsUsing
	}

	node, err := snowflake.NewNode(options.NodeID)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, err
	}
	m := &Manager{
		options:  options,
		mtx:      new(sync.RWMutex),
		indexes:  make(map[string]*index.Index),
		saved:    make(map[string]int64),
		fileLock: fileLock,
		logger:   options.Logger.Named("docindex"),
		metrics:  index.NewMetrics(options.Registerer),
		node:     node,
		cron:     cron.New(),
	}

	if err := m.loadIndexes(context.Background()); err != nil {
		_ = m.closeIndexes()
		_ = fileLock.Unlock()
		return nil, err
	}
	if options.BackupSchedule != "" {
		if _, err := m.cron.AddFunc(options.BackupSchedule, m.scheduledBackup); err != nil {
			_ = m.closeIndexes()
			_ = fileLock.Unlock()
			return nil, errors.Wrapf(err, "backup schedule %q", options.BackupSchedule)
		}
	}
	m.cron.Start()
	return m, nil
}

func (m *Manager) descriptorPath(name string) string {
	return filepath.Join(m.options.DirPath, indexesDirName, name+descriptorSuffix)
}

func (m *Manager) newEngine(name, algorithm string) (engine.Engine, error) {
	if algorithm == "" {
		algorithm = m.options.DefaultAlgorithm
	}
	return engine.New(engine.Options{
		Algorithm:  algorithm,
		Name:       name,
		DirPath:    filepath.Join(m.options.DirPath, enginesDirName, name),
		CacheSize:  m.options.CacheSize,
		SyncWrites: m.options.SyncWrites,
		Logger:     m.logger.Named("engine"),
	})
}

func (m *Manager) newIndex(eng engine.Engine) *index.Index {
	return index.New(eng, index.Options{
		Logger:  m.logger,
		Metrics: m.metrics,
		Source:  m.options.Source,
	})
}

// loadIndexes 加载所有的描述符，加载失败的索引不会出现在 Manager 里
func (m *Manager) loadIndexes(ctx context.Context) error {
	dir := filepath.Join(m.options.DirPath, indexesDirName)
	if !utils.DirExists(dir) {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), descriptorSuffix) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		desc, err := index.UnmarshalDescriptor(b)
		if err != nil {
			m.logger.Error("cannot read index descriptor", "file", entry.Name(), "error", err)
			continue
		}
		ix, err := m.loadIndex(ctx, desc)
		if err != nil {
			m.logger.Error("cannot load index", "index", desc.Name, "error", err)
			continue
		}
		if ix == nil {
			m.logger.Warn("index is dropped from the active set", "index", desc.Name)
			continue
		}
		m.indexes[desc.Name] = ix
		m.saved[desc.Name] = desc.Version
	}
	m.logger.Info("indexes loaded", "count", len(m.indexes))
	return nil
}

func (m *Manager) loadIndex(ctx context.Context, desc index.Descriptor) (*index.Index, error) {
	eng, err := m.newEngine(desc.Name, desc.Algorithm)
	if err != nil {
		return nil, err
	}
	ix := m.newIndex(eng)
	ok, err := ix.Load(ctx, desc)
	if err != nil || !ok {
		_ = eng.Close()
		return nil, err
	}
	// 内存引擎重启之后是空的
	if engine.Unwrap(eng).Algorithm() == engine.BTreeAlgorithm {
		if !ix.Automatic() || m.options.Source == nil {
			m.logger.Warn("in-memory index starts empty", "index", desc.Name)
			return ix, nil
		}
		if _, err := ix.Rebuild(ctx, index.LogProgress{Logger: m.logger, Every: 10000}); err != nil {
			_ = ix.Close()
			return nil, err
		}
	}
	return ix, nil
}

// saveDescriptor 先写临时文件再改名
func (m *Manager) saveDescriptor(ix *index.Index) error {
	desc := ix.Descriptor()
	b, err := desc.Marshal()
	if err != nil {
		return err
	}
	path := m.descriptorPath(desc.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	m.saved[desc.Name] = desc.Version
	return nil
}

// saveDescriptors 保存版本有变化的描述符，调用方持有锁
func (m *Manager) saveDescriptors() error {
	var errs error
	for name, ix := range m.indexes {
		if m.saved[name] == ix.Version() {
			continue
		}
		if err := m.saveDescriptor(ix); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\:`) && name != "." && name != ".."
}

// CreateIndex 创建索引，自动索引会马上从记录重建
func (m *Manager) CreateIndex(ctx context.Context, cfg IndexConfig) (*index.Index, error) {
	if !validName(cfg.Name) {
		return nil, errors.Wrapf(ErrInvalidIndexName, "%q", cfg.Name)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := m.indexes[cfg.Name]; ok {
		return nil, errors.Wrapf(ErrIndexExists, "%s", cfg.Name)
	}

	eng, err := m.newEngine(cfg.Name, cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	ix := m.newIndex(eng)
	if err := ix.Create(ctx, cfg.Config); err != nil {
		return nil, err
	}
	if ix.Automatic() && m.options.Source != nil {
		if _, err := ix.Rebuild(ctx, index.LogProgress{Logger: m.logger, Every: 10000}); err != nil {
			_ = ix.Delete(ctx)
			_ = ix.Close()
			return nil, err
		}
	}
	if err := m.saveDescriptor(ix); err != nil {
		_ = ix.Delete(ctx)
		_ = ix.Close()
		return nil, err
	}
	m.indexes[cfg.Name] = ix
	m.logger.Info("index created", "index", cfg.Name, "type", cfg.Type, "algorithm", eng.Algorithm())
	return ix, nil
}

func (m *Manager) Index(name string) (*index.Index, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	ix, ok := m.indexes[name]
	if !ok {
		return nil, errors.Wrapf(ErrIndexNotFound, "%s", name)
	}
	return ix, nil
}

// TxIndex 索引的事务视图
func (m *Manager) TxIndex(name string) (*index.TxIndex, error) {
	ix, err := m.Index(name)
	if err != nil {
		return nil, err
	}
	return index.NewTxIndex(ix), nil
}

// Indexes 所有索引的名字，按字母顺序
func (m *Manager) Indexes() []string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	names := make([]string, 0, len(m.indexes))
	for name := range m.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassIndexes 类上的自动索引
func (m *Manager) ClassIndexes(class string) []*index.Index {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	var out []*index.Index
	for _, ix := range m.indexes {
		if d := ix.Definition(); ix.Automatic() && d.ClassName() == class {
			out = append(out, ix)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DropIndex 删除索引和它的数据
func (m *Manager) DropIndex(ctx context.Context, name string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	ix, ok := m.indexes[name]
	if !ok {
		return errors.Wrapf(ErrIndexNotFound, "%s", name)
	}
	if err := ix.Delete(ctx); err != nil {
		return err
	}
	_ = ix.Close()
	delete(m.indexes, name)
	delete(m.saved, name)
	if err := os.Remove(m.descriptorPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	m.logger.Info("index dropped", "index", name)
	return nil
}

// RebuildIndex 重建一个自动索引
func (m *Manager) RebuildIndex(ctx context.Context, name string) (int64, error) {
	ix, err := m.Index(name)
	if err != nil {
		return 0, err
	}
	return ix.Rebuild(ctx, index.LogProgress{Logger: m.logger, Every: 10000})
}

// RebuildAll 重建所有的自动索引，出错的索引不影响其它索引
func (m *Manager) RebuildAll(ctx context.Context) error {
	var errs error
	for _, name := range m.Indexes() {
		ix, err := m.Index(name)
		if err != nil {
			continue
		}
		if !ix.Automatic() {
			continue
		}
		if _, err := ix.Rebuild(ctx, index.LogProgress{Logger: m.logger, Every: 10000}); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "rebuild %s", name))
		}
	}
	return errs
}

// ScheduleRebuild 按 cron 表达式定时重建索引
func (m *Manager) ScheduleRebuild(spec, name string) (cron.EntryID, error) {
	if _, err := m.Index(name); err != nil {
		return 0, err
	}
	return m.cron.AddFunc(spec, func() {
		if _, err := m.RebuildIndex(context.Background(), name); err != nil {
			m.logger.Error("scheduled rebuild failed", "index", name, "error", err)
		}
	})
}

func (m *Manager) Unschedule(id cron.EntryID) {
	m.cron.Remove(id)
}

// Begin 开启一个事务
func (m *Manager) Begin() *tx.Transaction {
	return tx.Begin(m.node)
}

// Sync 刷盘并保存有变化的描述符
func (m *Manager) Sync() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	errs := m.saveDescriptors()
	for _, ix := range m.indexes {
		if err := ix.Flush(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (m *Manager) closeIndexes() error {
	var errs error
	for _, ix := range m.indexes {
		if err := ix.Close(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (m *Manager) Close() error {
	// 定时任务里也会拿 mtx，先等它们结束
	<-m.cron.Stop().Done()

	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	errs := m.saveDescriptors()
	errs = errors.CombineErrors(errs, m.closeIndexes())
	if err := m.fileLock.Unlock(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	return errs
}
