package docindex

import "github.com/cockroachdb/errors"

var (
	ErrDatabaseIsUsing   = errors.New("the index directory is used by another process")
	ErrManagerClosed     = errors.New("index manager is closed")
	ErrIndexExists       = errors.New("index already exists")
	ErrIndexNotFound     = errors.New("index not found")
	ErrInvalidIndexName  = errors.New("invalid index name")
	ErrDescriptorCorrupt = errors.New("index descriptor file is corrupted")
)
