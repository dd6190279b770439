package engine

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// NewLevelDB 基于 goleveldb 的持久化引擎
func NewLevelDB(opts Options) Engine {
	opts.Algorithm = LevelDB
	return newKVEngine(opts, func() kvStore { return &levelStore{} })
}

type levelStore struct {
	db *leveldb.DB
}

func (s *levelStore) open(dir string, opts Options) error {
	var (
		db  *leveldb.DB
		err error
	)
	if opts.InMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(dir, nil)
	}
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *levelStore) get(k []byte) ([]byte, bool, error) {
	v, err := s.db.Get(k, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *levelStore) set(k, v []byte, sync bool) error {
	return s.db.Put(k, v, &opt.WriteOptions{Sync: sync})
}

func (s *levelStore) del(k []byte, sync bool) error {
	return s.db.Delete(k, &opt.WriteOptions{Sync: sync})
}

func (s *levelStore) clear(sync bool) error {
	batch := new(leveldb.Batch)
	it := s.db.NewIterator(nil, nil)
	for it.Next() {
		batch.Delete(slices.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, &opt.WriteOptions{Sync: sync})
}

func (s *levelStore) cursor(reverse bool) (kvCursor, error) {
	return &levelCursor{it: s.db.NewIterator(nil, nil), reverse: reverse}, nil
}

// leveldb 写入的数据已经在 journal 里了
func (s *levelStore) flush() error { return nil }

func (s *levelStore) close() error {
	return s.db.Close()
}

type levelCursor struct {
	it      iterator.Iterator
	reverse bool
}

func (c *levelCursor) first() {
	if c.reverse {
		c.it.Last()
	} else {
		c.it.First()
	}
}

func (c *levelCursor) seek(k []byte) {
	if !c.reverse {
		c.it.Seek(k)
		return
	}
	// 找到第一个 > k 的再退一步
	if c.it.Seek(successor(k)) {
		c.it.Prev()
	} else {
		c.it.Last()
	}
}

func (c *levelCursor) next() {
	if c.reverse {
		c.it.Prev()
	} else {
		c.it.Next()
	}
}

func (c *levelCursor) valid() bool   { return c.it.Valid() }
func (c *levelCursor) key() []byte   { return c.it.Key() }
func (c *levelCursor) value() []byte { return slices.Clone(c.it.Value()) }
func (c *levelCursor) err() error    { return c.it.Error() }
func (c *levelCursor) close()        { c.it.Release() }
