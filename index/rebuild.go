package index

import (
	"context"
	"time"

	"github.com/Hain2000/docindex/definition"
	"github.com/Hain2000/docindex/engine"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-hclog"
)

// ProgressListener 重建进度的回调
type ProgressListener interface {
	OnBegin(index string)
	OnProgress(index string, indexed int64)
	OnCompletion(index string, indexed int64, ok bool)
}

type nopListener struct{}

func (nopListener) OnBegin(string)                   {}
func (nopListener) OnProgress(string, int64)         {}
func (nopListener) OnCompletion(string, int64, bool) {}

// LogProgress 每 Every 条记录打一次日志
type LogProgress struct {
	Logger hclog.Logger
	Every  int64
}

func (l LogProgress) OnBegin(index string) {
	l.Logger.Info("rebuild started", "index", index)
}

func (l LogProgress) OnProgress(index string, indexed int64) {
	if l.Every > 0 && indexed%l.Every == 0 {
		l.Logger.Info("rebuild progress", "index", index, "indexed", indexed)
	}
}

func (l LogProgress) OnCompletion(index string, indexed int64, ok bool) {
	l.Logger.Info("rebuild finished", "index", index, "indexed", indexed, "ok", ok)
}

// Rebuild 清空索引，扫描所有 cluster 重新写入，返回写入的记录数
// 重建期间其它调用返回 ErrRebuildInProgress
func (ix *Index) Rebuild(ctx context.Context, listener ProgressListener) (int64, error) {
	if !ix.Automatic() {
		return 0, errors.Wrapf(ErrNotAutomatic, "index %s", ix.name)
	}
	if ix.source == nil {
		return 0, errors.Wrapf(ErrNoRecordSource, "index %s", ix.name)
	}
	tok := &rebuildToken{index: ix.name}
	// 先等正在进行的写操作结束，之后的写操作在 beginWrite 里会看到重建标记
	var swapped bool
	ix.modLock.drain(func() { swapped = ix.rebuilding.CompareAndSwap(nil, tok) })
	if !swapped {
		return 0, errors.Wrapf(ErrRebuildInProgress, "index %s", ix.name)
	}
	defer ix.rebuilding.Store(nil)

	if listener == nil {
		listener = nopListener{}
	}
	ctx = rebuildCtx(ctx, tok)
	start := time.Now()
	// 重建之前打开的游标全部失效
	ix.rebuildVersion.Add(1)
	listener.OnBegin(ix.name)

	indexed, err := ix.fill(ctx, listener)
	ix.metrics.rebuild(ix.name, start, err)
	if err != nil {
		ix.rwLock.Lock()
		if cerr := ix.engine.Clear(); cerr != nil {
			ix.logger.Warn("cannot clear index after failed rebuild", "error", cerr)
		}
		ix.rwLock.Unlock()
		ix.unusable.Store(true)
		listener.OnCompletion(ix.name, indexed, false)
		ix.logger.Error("rebuild failed", "indexed", indexed, "error", err)
		return indexed, err
	}
	ix.unusable.Store(false)
	listener.OnCompletion(ix.name, indexed, true)
	ix.logger.Info("rebuild finished", "indexed", indexed, "elapsed", time.Since(start))
	return indexed, nil
}

func (ix *Index) fill(ctx context.Context, listener ProgressListener) (indexed int64, err error) {
	if bulk, ok := engine.AsBulkLoader(ix.engine); ok {
		bulk.BeginBulkLoad()
		defer func() {
			if eerr := bulk.EndBulkLoad(); eerr != nil && err == nil {
				err = eerr
			}
		}()
	}

	ix.rwLock.Lock()
	if derr := ix.engine.Delete(ctx); derr != nil {
		ix.logger.Debug("cannot delete index data before rebuild", "error", derr)
	}
	err = ix.engine.Create(ctx)
	ix.rwLock.Unlock()
	if err != nil {
		return 0, errors.Wrapf(err, "rebuild index %s", ix.name)
	}

	def := ix.Definition()
	for _, cluster := range ix.clusters {
		err = ix.source.Scan(ctx, cluster, func(r definition.Record) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			v, err := definition.Extract(def, r)
			if err != nil {
				return err
			}
			for _, k := range definition.Flatten(v) {
				if err := ix.Put(ctx, k, r); err != nil {
					return err
				}
			}
			indexed++
			listener.OnProgress(ix.name, indexed)
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return indexed, errors.Wrapf(ErrRebuildInterrupted, "index %s after %d records: %v", ix.name, indexed, err)
			}
			return indexed, err
		}
	}

	ix.rwLock.RLock()
	err = ix.engine.Flush()
	ix.rwLock.RUnlock()
	return indexed, err
}
