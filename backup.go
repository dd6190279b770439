package docindex

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/index"
	"github.com/Hain2000/docindex/utils"
	"github.com/cockroachdb/errors"
)

const backupTimeLayout = "20060102-150405"

// Backup 把所有索引备份到 dir，目录结构和数据目录相同，可以直接用 Open 打开
// 不支持 checkpoint 的引擎只备份描述符，打开时由记录重建
func (m *Manager) Backup(ctx context.Context, dir string) error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	if utils.DirExists(dir) {
		if entries, _ := os.ReadDir(dir); len(entries) > 0 {
			return errors.Newf("backup dir %s is not empty", dir)
		}
	}
	for _, sub := range []string{indexesDirName, enginesDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), os.ModePerm); err != nil {
			return err
		}
	}

	start := time.Now()
	for name, ix := range m.indexes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.backupIndex(ix, dir); err != nil {
			return errors.Wrapf(err, "backup index %s", name)
		}
	}
	size, err := utils.DirSize(dir)
	if err != nil {
		return err
	}
	m.logger.Info("backup finished", "dir", dir, "indexes", len(m.indexes), "size", size, "elapsed", time.Since(start))
	return nil
}

func (m *Manager) backupIndex(ix *index.Index, dir string) error {
	// 等正在进行的写完成，之后的写会被挡住
	ix.Freeze(false)
	defer ix.Release()

	if err := ix.Flush(); err != nil {
		return err
	}
	if cp, ok := engine.AsCheckpointer(ix.Engine()); ok {
		err := cp.Checkpoint(filepath.Join(dir, enginesDirName, ix.Name()))
		if errors.Is(err, engine.ErrCheckpointNotSupported) {
			m.logger.Warn("index engine cannot be checkpointed, only the descriptor is saved", "index", ix.Name(), "algorithm", ix.Engine().Algorithm())
		} else if err != nil {
			return err
		}
	}

	desc := ix.Descriptor()
	b, err := desc.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, indexesDirName, ix.Name()+descriptorSuffix), b, 0o644)
}

func (m *Manager) scheduledBackup() {
	dir := filepath.Join(m.options.BackupDir, time.Now().Format(backupTimeLayout))
	if err := m.Backup(context.Background(), dir); err != nil {
		m.logger.Error("scheduled backup failed", "dir", dir, "error", err)
	}
}
