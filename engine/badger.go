package engine

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
)

// NewBadger 基于 badger 的持久化引擎
func NewBadger(opts Options) Engine {
	opts.Algorithm = Badger
	return newKVEngine(opts, func() kvStore { return &badgerStore{} })
}

type badgerStore struct {
	db *badger.DB
}

func (s *badgerStore) open(dir string, opts Options) error {
	bo := badger.DefaultOptions(dir)
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	}
	bo = bo.WithLogger(nil).WithSyncWrites(opts.SyncWrites)
	db, err := badger.Open(bo)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *badgerStore) get(k []byte) ([]byte, bool, error) {
	var (
		v     []byte
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		v, err = item.ValueCopy(nil)
		return err
	})
	return v, found, err
}

// badger 的 sync 在打开的时候决定
func (s *badgerStore) set(k, v []byte, _ bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

func (s *badgerStore) del(k []byte, _ bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (s *badgerStore) clear(bool) error {
	return s.db.DropAll()
}

func (s *badgerStore) cursor(reverse bool) (kvCursor, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	return &badgerCursor{txn: txn, it: txn.NewIterator(opts)}, nil
}

func (s *badgerStore) flush() error {
	return s.db.Sync()
}

// checkpoint 写一个全量备份文件
func (s *badgerStore) checkpoint(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "badger.bak"))
	if err != nil {
		return err
	}
	if _, err := s.db.Backup(f, 0); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *badgerStore) close() error {
	return s.db.Close()
}

type badgerCursor struct {
	txn *badger.Txn
	it  *badger.Iterator
	e   error
}

func (c *badgerCursor) first()        { c.it.Rewind() }
func (c *badgerCursor) seek(k []byte) { c.it.Seek(k) }
func (c *badgerCursor) next()         { c.it.Next() }
func (c *badgerCursor) valid() bool   { return c.it.Valid() }
func (c *badgerCursor) key() []byte   { return c.it.Item().Key() }

func (c *badgerCursor) value() []byte {
	v, err := c.it.Item().ValueCopy(nil)
	if err != nil {
		c.e = err
	}
	return v
}

func (c *badgerCursor) err() error { return c.e }

func (c *badgerCursor) close() {
	c.it.Close()
	c.txn.Discard()
}
