package index

import (
	"fmt"

	"github.com/Hain2000/docindex/data"
	"github.com/cockroachdb/errors"
)

var (
	ErrDuplicateKey           = errors.New("duplicate key in unique index")
	ErrRebuildInProgress      = errors.New("index is being rebuilt")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrLoadFailure            = errors.New("index cannot be loaded")
	ErrUnknownIndexType       = errors.New("unknown index type")
	ErrRebuildInterrupted     = errors.New("index rebuild was interrupted")
	ErrIndexFrozen            = errors.New("index is frozen for modifications")
	ErrIndexUnusable          = errors.New("index is unusable, it has to be rebuilt")
	ErrRebuildVersionChanged  = errors.New("index was rebuilt while the cursor was open")
	ErrNotAutomatic           = errors.New("manual index cannot be rebuilt")
	ErrNoRecordSource         = errors.New("no record source to rebuild the index from")
	ErrIndexNameIsEmpty       = errors.New("index name is empty")
)

// DuplicateKeyError 唯一索引上同一个键已经有另一个值
type DuplicateKeyError struct {
	Index    string
	Key      any
	Existing data.RID
	Value    data.RID
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("found duplicated key '%v' in index '%s' previously assigned to the record %s, cannot assign it to %s",
		e.Key, e.Index, e.Existing, e.Value)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}
