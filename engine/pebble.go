package engine

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// NewPebble 基于 pebble 的持久化引擎
func NewPebble(opts Options) Engine {
	opts.Algorithm = Pebble
	return newKVEngine(opts, func() kvStore { return &pebbleStore{} })
}

type pebbleStore struct {
	db *pebble.DB
}

func (s *pebbleStore) open(dir string, opts Options) error {
	po := &pebble.Options{}
	if opts.InMemory {
		po.FS = vfs.NewMem()
		dir = ""
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func writeOpts(sync bool) *pebble.WriteOptions {
	if sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *pebbleStore) get(k []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return slices.Clone(v), true, nil
}

func (s *pebbleStore) set(k, v []byte, sync bool) error {
	return s.db.Set(k, v, writeOpts(sync))
}

func (s *pebbleStore) del(k []byte, sync bool) error {
	return s.db.Delete(k, writeOpts(sync))
}

// 编码后的 key 第一个字节在 [0x01, 0xFE] 之间
func (s *pebbleStore) clear(sync bool) error {
	return s.db.DeleteRange([]byte{0x00}, []byte{0xFF}, writeOpts(sync))
}

func (s *pebbleStore) cursor(reverse bool) (kvCursor, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	return &pebbleCursor{it: it, reverse: reverse}, nil
}

func (s *pebbleStore) flush() error {
	return s.db.Flush()
}

func (s *pebbleStore) checkpoint(dir string) error {
	return s.db.Checkpoint(dir)
}

func (s *pebbleStore) close() error {
	return s.db.Close()
}

type pebbleCursor struct {
	it      *pebble.Iterator
	reverse bool
}

func (c *pebbleCursor) first() {
	if c.reverse {
		c.it.Last()
	} else {
		c.it.First()
	}
}

func (c *pebbleCursor) seek(k []byte) {
	if c.reverse {
		c.it.SeekLT(successor(k))
	} else {
		c.it.SeekGE(k)
	}
}

func (c *pebbleCursor) next() {
	if c.reverse {
		c.it.Prev()
	} else {
		c.it.Next()
	}
}

func (c *pebbleCursor) valid() bool   { return c.it.Valid() }
func (c *pebbleCursor) key() []byte   { return c.it.Key() }
func (c *pebbleCursor) value() []byte { return slices.Clone(c.it.Value()) }
func (c *pebbleCursor) err() error    { return c.it.Error() }
func (c *pebbleCursor) close()        { _ = c.it.Close() }
