package docindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/definition"
	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/index"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) Options {
	dir, err := os.MkdirTemp("", "docindex-manager")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	opts := DefaultOptions
	opts.DirPath = dir
	return opts
}

func openManager(t *testing.T, opts Options) *Manager {
	m, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func tagIndex(name string) IndexConfig {
	return IndexConfig{
		Config: index.Config{
			Name:       name,
			Type:       index.NotUnique,
			Definition: definition.NewProperty("Person", "tag", definition.TypeString),
			Clusters:   []string{"Person"},
		},
		Algorithm: engine.BTreeAlgorithm,
	}
}

func TestOpen(t *testing.T) {
	opts := testOptions(t)
	m, err := Open(opts)
	assert.Nil(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m.Indexes())
	assert.True(t, fileExists(filepath.Join(opts.DirPath, fileLockName)))

	// 目录被占用
	_, err = Open(opts)
	assert.ErrorIs(t, err, ErrDatabaseIsUsing)

	require.NoError(t, m.Close())
	m2, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, m2.Close())

	_, err = m.Index("any")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestOpen_BadOptions(t *testing.T) {
	opts := testOptions(t)
	opts.DefaultAlgorithm = "SKIPLIST"
	_, err := Open(opts)
	assert.ErrorIs(t, err, engine.ErrUnknownAlgorithm)

	opts = testOptions(t)
	opts.BackupSchedule = "@every 1h"
	_, err = Open(opts)
	assert.Error(t, err)

	opts = testOptions(t)
	opts.DirPath = ""
	_, err = Open(opts)
	assert.Error(t, err)
}

func TestLoadOptions(t *testing.T) {
	dir, _ := os.MkdirTemp("", "docindex-options")
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "docindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dirPath: /var/lib/docindex
defaultAlgorithm: leveldb
cacheSize: 128
backupDir: /var/backups/docindex
backupSchedule: "@daily"
`), 0o644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/docindex", opts.DirPath)
	assert.Equal(t, "leveldb", opts.DefaultAlgorithm)
	assert.Equal(t, 128, opts.CacheSize)
	assert.Equal(t, "@daily", opts.BackupSchedule)
	assert.Equal(t, DefaultOptions.NodeID, opts.NodeID)
	assert.NoError(t, checkOptions(opts))

	_, err = LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestManager_CreateIndex(t *testing.T) {
	ctx := context.Background()
	m := openManager(t, testOptions(t))

	ix, err := m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "emails", Type: index.Unique}})
	require.NoError(t, err)
	assert.Equal(t, engine.Pebble, ix.Engine().Algorithm())
	_, err = m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "emails", Type: index.Unique}})
	assert.ErrorIs(t, err, ErrIndexExists)
	_, err = m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "../x", Type: index.Unique}})
	assert.ErrorIs(t, err, ErrInvalidIndexName)
	_, err = m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "bad", Type: "HASH"}})
	assert.ErrorIs(t, err, index.ErrUnknownIndexType)

	_, err = m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)
	assert.Equal(t, []string{"emails", "tags"}, m.Indexes())
	assert.Len(t, m.ClassIndexes("Person"), 1)
	assert.Empty(t, m.ClassIndexes("Company"))

	require.NoError(t, ix.Put(ctx, "a@x.io", data.NewRID(1, 1)))
	err = ix.Put(ctx, "a@x.io", data.NewRID(1, 2))
	assert.ErrorIs(t, err, index.ErrDuplicateKey)

	require.NoError(t, m.DropIndex(ctx, "emails"))
	_, err = m.Index("emails")
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.ErrorIs(t, m.DropIndex(ctx, "emails"), ErrIndexNotFound)
	assert.False(t, fileExists(m.descriptorPath("emails")))
}

func TestManager_Reopen(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	r1 := data.NewRID(3, 7)

	m, err := Open(opts)
	require.NoError(t, err)
	ix, err := m.CreateIndex(ctx, IndexConfig{
		Config:    index.Config{Name: "names", Type: index.NotUnique, Collate: "ci"},
		Algorithm: engine.LevelDB,
	})
	require.NoError(t, err)
	// 手动索引第一次写入时推断键类型
	require.NoError(t, ix.Put(ctx, "Alice", r1))
	assert.Equal(t, int64(2), ix.Version())
	require.NoError(t, m.Close())

	m = openManager(t, opts)
	ix, err = m.Index("names")
	require.NoError(t, err)
	assert.Equal(t, engine.LevelDB, ix.Engine().Algorithm())
	assert.Equal(t, "ci", ix.Collate().Name())
	assert.Equal(t, int64(2), ix.Version())
	assert.NotNil(t, ix.Definition())
	rids, err := ix.Get(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{r1}, rids)
}

func TestManager_ReopenCorruptDescriptor(t *testing.T) {
	opts := testOptions(t)
	m, err := Open(opts)
	require.NoError(t, err)
	_, err = m.CreateIndex(context.Background(), tagIndex("tags"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	require.NoError(t, os.WriteFile(m.descriptorPath("tags"), []byte{0xff, 0x01}, 0o644))
	m = openManager(t, opts)
	assert.Empty(t, m.Indexes())
}

// 创建、删除记录之后索引内容和重建的结果一致
func TestManager_Hooks(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecords()
	opts := testOptions(t)
	opts.Source = records
	opts.Versions = records
	m := openManager(t, opts)

	_, err := m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)
	tags, err := m.TxIndex("tags")
	require.NoError(t, err)

	trx := m.Begin()
	d1 := records.Pending(definition.NewDocument("Person", data.NewRID(-1, -2), map[string]any{"tag": "a"}))
	d2 := records.Pending(definition.NewDocument("Person", data.NewRID(-1, -3), map[string]any{"tag": "a"}))
	require.NoError(t, m.OnCreate(ctx, trx, d1))
	require.NoError(t, m.OnCreate(ctx, trx, d2))
	r1, r2 := d1.Identity(), d2.Identity()
	assert.True(t, r1.IsPersistent())

	// 提交之前只有事务里能看到
	rids, err := tags.Get(ctx, trx, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{r1, r2}, rids)
	rids, err = tags.Get(ctx, nil, "a")
	require.NoError(t, err)
	assert.Empty(t, rids)
	require.NoError(t, trx.Commit(ctx))

	rids, err = tags.Get(ctx, nil, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{r1, r2}, rids)

	doc, ok := records.Load(r1)
	require.True(t, ok)
	trx = m.Begin()
	require.NoError(t, m.OnDelete(ctx, trx, doc))
	require.NoError(t, trx.Commit(ctx))
	records.Delete(r1)

	rids, err = tags.Get(ctx, nil, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{r2}, rids)

	n, err := m.RebuildIndex(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	rids, err = tags.Get(ctx, nil, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{r2}, rids)
}

func TestManager_OnUpdate(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecords()
	opts := testOptions(t)
	opts.Source = records
	m := openManager(t, opts)

	_, err := m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)
	lists := tagIndex("labels")
	lists.Definition = definition.NewPropertyList("Person", "labels", definition.TypeString)
	_, err = m.CreateIndex(ctx, lists)
	require.NoError(t, err)

	doc := definition.NewDocument("Person", data.NewRID(-1, -2), map[string]any{"tag": "a", "labels": []any{"x", "y"}})
	rid := records.Save(doc)
	require.NoError(t, m.OnCreate(ctx, nil, doc))

	doc, _ = records.Load(rid)
	doc.Set("labels", []any{"y", "z"})
	require.NoError(t, m.OnUpdate(ctx, nil, doc))
	records.Save(doc)

	labels, _ := m.Index("labels")
	for k, want := range map[string][]data.RID{"x": nil, "y": {rid}, "z": {rid}} {
		rids, err := labels.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(rids), k)
	}
	// tag 没有改，tags 索引不受影响
	tags, _ := m.Index("tags")
	rids, err := tags.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{rid}, rids)

	other := definition.NewDocument("Company", data.NewRID(-1, -4), map[string]any{"tag": "a"})
	records.Save(other)
	require.NoError(t, m.OnCreate(ctx, nil, other))
	rids, err = tags.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{rid}, rids)
}

func TestManager_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecords()
	opts := testOptions(t)
	opts.Source = records
	opts.Versions = records
	m := openManager(t, opts)
	_, err := m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)

	rid := records.Save(definition.NewDocument("Person", data.NewRID(-1, -2), map[string]any{"tag": "a"}))
	stale, _ := records.Load(rid)
	fresh, _ := records.Load(rid)
	fresh.Set("tag", "b")
	records.Save(fresh)

	err = m.OnDelete(ctx, nil, stale)
	assert.ErrorIs(t, err, index.ErrConcurrentModification)
	fresh, _ = records.Load(rid)
	assert.NoError(t, m.OnDelete(ctx, nil, fresh))
}

func TestManager_ReopenInMemory(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecords()
	rid := records.Save(definition.NewDocument("Person", data.NewRID(-1, -2), map[string]any{"tag": "a"}))
	opts := testOptions(t)
	opts.Source = records

	m, err := Open(opts)
	require.NoError(t, err)
	_, err = m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// 内存引擎重新打开时从记录重建
	m = openManager(t, opts)
	ix, err := m.Index("tags")
	require.NoError(t, err)
	rids, err := ix.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []data.RID{rid}, rids)
}

func TestManager_RebuildAll(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecords()
	opts := testOptions(t)
	opts.Source = records
	m := openManager(t, opts)

	_, err := m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)
	unique := tagIndex("unique_tags")
	unique.Type = index.Unique
	_, err = m.CreateIndex(ctx, unique)
	require.NoError(t, err)
	_, err = m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "manual", Type: index.NotUnique}})
	require.NoError(t, err)

	records.Save(definition.NewDocument("Person", data.NewRID(-1, -2), map[string]any{"tag": "a"}))
	records.Save(definition.NewDocument("Person", data.NewRID(-1, -3), map[string]any{"tag": "a"}))

	err = m.RebuildAll(ctx)
	assert.ErrorIs(t, err, index.ErrDuplicateKey)
	tags, _ := m.Index("tags")
	n, err := tags.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	broken, _ := m.Index("unique_tags")
	assert.True(t, broken.Unusable())
}

func TestManager_Backup(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.Registerer = prometheus.NewRegistry()
	m, err := Open(opts)
	require.NoError(t, err)

	ix, err := m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "emails", Type: index.Unique}})
	require.NoError(t, err)
	mem, err := m.CreateIndex(ctx, IndexConfig{Config: index.Config{Name: "mem", Type: index.NotUnique}, Algorithm: engine.BTreeAlgorithm})
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, ix.Put(ctx, int64(i), data.NewRID(1, int64(i))))
	}
	require.NoError(t, mem.Put(ctx, "k", data.NewRID(1, 1)))

	backupDir, _ := os.MkdirTemp("", "docindex-backup")
	defer os.RemoveAll(backupDir)
	require.NoError(t, m.Backup(ctx, backupDir))
	assert.False(t, ix.Frozen())
	assert.Error(t, m.Backup(ctx, backupDir))
	require.NoError(t, m.Close())

	restored := opts
	restored.DirPath = backupDir
	restored.Registerer = nil
	m2 := openManager(t, restored)
	assert.Equal(t, []string{"emails", "mem"}, m2.Indexes())
	ix2, err := m2.Index("emails")
	require.NoError(t, err)
	n, err := ix2.KeySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	rids, err := ix2.Get(ctx, int64(42))
	require.NoError(t, err)
	assert.Equal(t, []data.RID{data.NewRID(1, 42)}, rids)
}

func TestManager_ScheduleRebuild(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.Source = NewMemoryRecords()
	m := openManager(t, opts)
	_, err := m.CreateIndex(ctx, tagIndex("tags"))
	require.NoError(t, err)

	id, err := m.ScheduleRebuild("@every 1h", "tags")
	require.NoError(t, err)
	assert.NotZero(t, id)
	m.Unschedule(id)

	_, err = m.ScheduleRebuild("@every 1h", "missing")
	assert.ErrorIs(t, err, ErrIndexNotFound)
	_, err = m.ScheduleRebuild("not a schedule", "tags")
	assert.Error(t, err)
}
