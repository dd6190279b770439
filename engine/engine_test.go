package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Hain2000/docindex/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, algorithm string, inMemory bool) Engine {
	dir, _ := os.MkdirTemp("", "docindex-engine")
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	e, err := New(Options{
		Algorithm: algorithm,
		Name:      "test",
		DirPath:   filepath.Join(dir, "test"),
		InMemory:  inMemory,
	})
	require.NoError(t, err)
	require.NoError(t, e.Create(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

var allAlgorithms = []string{BTreeAlgorithm, Pebble, LevelDB, Badger}

func collectKeys(t *testing.T, it Iterator) []any {
	defer it.Close()
	var keys []any
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Err())
	return keys
}

func TestEngine_PutGetRemove(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(alg, func(t *testing.T) {
			e := newTestEngine(t, alg, false)

			err := e.Put("k1", []byte("v1"))
			assert.Nil(t, err)
			err = e.Put(int64(5), []byte("v5"))
			assert.Nil(t, err)
			err = e.Put("k1", []byte("v1-new"))
			assert.Nil(t, err)

			v, ok, err := e.Get("k1")
			assert.Nil(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v1-new"), v)

			_, ok, err = e.Get("missing")
			assert.Nil(t, err)
			assert.False(t, ok)

			size, err := e.Size()
			assert.Nil(t, err)
			assert.Equal(t, int64(2), size)

			removed, err := e.Remove("k1")
			assert.Nil(t, err)
			assert.True(t, removed)
			removed, err = e.Remove("k1")
			assert.Nil(t, err)
			assert.False(t, removed)

			ok, err = e.Contains(5)
			assert.Nil(t, err)
			assert.True(t, ok)

			assert.Nil(t, e.Clear())
			size, _ = e.Size()
			assert.Equal(t, int64(0), size)
			assert.Equal(t, alg, e.Algorithm())
			assert.NotEmpty(t, e.Locator())
		})
	}
}

func TestEngine_Range(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(alg, func(t *testing.T) {
			e := newTestEngine(t, alg, true)
			for _, k := range []int64{2, 4, 6, 8} {
				assert.Nil(t, e.Put(k, []byte(fmt.Sprint(k))))
			}

			it, err := e.Range(Between(int64(3), true, int64(7), true), IteratorOptions{})
			require.NoError(t, err)
			assert.Equal(t, []any{int64(4), int64(6)}, collectKeys(t, it))

			it, err = e.Range(Between(int64(3), true, int64(7), true), IteratorOptions{Reverse: true})
			require.NoError(t, err)
			assert.Equal(t, []any{int64(6), int64(4)}, collectKeys(t, it))

			it, err = e.Range(Between(int64(2), false, int64(8), false), IteratorOptions{})
			require.NoError(t, err)
			assert.Equal(t, []any{int64(4), int64(6)}, collectKeys(t, it))

			it, err = e.Range(Major(int64(4), true), IteratorOptions{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []any{int64(4), int64(6)}, collectKeys(t, it))

			it, err = e.Range(Minor(int64(6), false), IteratorOptions{Reverse: true})
			require.NoError(t, err)
			assert.Equal(t, []any{int64(4), int64(2)}, collectKeys(t, it))

			it, err = e.Iterator(IteratorOptions{Reverse: true})
			require.NoError(t, err)
			assert.Equal(t, []any{int64(8), int64(6), int64(4), int64(2)}, collectKeys(t, it))
		})
	}
}

func TestEngine_IteratorSeek(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(alg, func(t *testing.T) {
			e := newTestEngine(t, alg, true)
			for _, k := range []string{"aa", "bb", "cc", "dd"} {
				assert.Nil(t, e.Put(k, []byte(k)))
			}

			it, err := e.Iterator(IteratorOptions{})
			require.NoError(t, err)
			it.Seek("bc")
			assert.True(t, it.Valid())
			assert.Equal(t, "cc", it.Key())
			assert.Equal(t, []byte("cc"), it.Value())
			it.Close()

			it, err = e.Iterator(IteratorOptions{Reverse: true})
			require.NoError(t, err)
			it.Seek("bc")
			assert.True(t, it.Valid())
			assert.Equal(t, "bb", it.Key())
			it.Seek("cc")
			assert.Equal(t, "cc", it.Key())
			it.Rewind()
			assert.Equal(t, "dd", it.Key())
			it.Close()
		})
	}
}

func TestEngine_PartialCompositeBounds(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(alg, func(t *testing.T) {
			e := newTestEngine(t, alg, true)
			keys := []*key.CompositeKey{
				key.NewCompositeKey("a", int64(1)),
				key.NewCompositeKey("b", int64(1)),
				key.NewCompositeKey("b", int64(2)),
				key.NewCompositeKey("c", int64(1)),
			}
			for _, k := range keys {
				assert.Nil(t, e.Put(k, []byte("x")))
			}

			prefix := key.NewCompositeKey("b")
			from := key.EnhanceFrom(prefix, true, 2)
			to := key.EnhanceTo(prefix, true, 2)
			it, err := e.Range(Between(from, true, to, true), IteratorOptions{})
			require.NoError(t, err)
			got := collectKeys(t, it)
			require.Len(t, got, 2)
			assert.True(t, keys[1].Equal(got[0].(*key.CompositeKey)))
			assert.True(t, keys[2].Equal(got[1].(*key.CompositeKey)))
		})
	}
}

func TestEngine_CompositePrefixKeys(t *testing.T) {
	for _, alg := range allAlgorithms {
		t.Run(alg, func(t *testing.T) {
			e := newTestEngine(t, alg, true)
			assert.Nil(t, e.Put(key.NewCompositeKey("a", int64(1)), []byte("a1")))
			assert.Nil(t, e.Put(key.NewCompositeKey("a"), []byte("a")))
			assert.Nil(t, e.Put("a", []byte("scalar")))

			size, err := e.Size()
			require.NoError(t, err)
			assert.Equal(t, int64(3), size)

			v, ok, err := e.Get(key.NewCompositeKey("a"))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("a"), v)
			v, ok, err = e.Get(key.NewCompositeKey("a", int64(1)))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("a1"), v)

			it, err := e.Iterator(IteratorOptions{})
			require.NoError(t, err)
			got := collectKeys(t, it)
			require.Len(t, got, 3)
			assert.True(t, key.NewCompositeKey("a").Equal(got[0].(*key.CompositeKey)))
			assert.Equal(t, "a", got[1])
			assert.True(t, key.NewCompositeKey("a", int64(1)).Equal(got[2].(*key.CompositeKey)))

			ok, err = e.Remove(key.NewCompositeKey("a"))
			require.NoError(t, err)
			assert.True(t, ok)
			_, ok, err = e.Get(key.NewCompositeKey("a", int64(1)))
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEngine_Reload(t *testing.T) {
	for _, alg := range []string{Pebble, LevelDB, Badger} {
		t.Run(alg, func(t *testing.T) {
			dir, _ := os.MkdirTemp("", "docindex-engine-reload")
			defer os.RemoveAll(dir)
			opts := Options{Algorithm: alg, Name: "reload", DirPath: filepath.Join(dir, "reload")}

			e, err := New(opts)
			require.NoError(t, err)
			require.NoError(t, e.Create(context.Background()))
			for i := 0; i < 10; i++ {
				assert.Nil(t, e.Put(int64(i), []byte("v")))
			}
			assert.Nil(t, e.Flush())
			assert.Nil(t, e.Close())

			e2, err := New(opts)
			require.NoError(t, err)
			require.NoError(t, e2.Load(context.Background()))
			size, err := e2.Size()
			assert.Nil(t, err)
			assert.Equal(t, int64(10), size)

			assert.Nil(t, e2.Delete(context.Background()))
			_, err = os.Stat(opts.DirPath)
			assert.True(t, os.IsNotExist(err))

			e3, _ := New(opts)
			assert.ErrorIs(t, e3.Load(context.Background()), ErrEngineNotFound)
		})
	}
}

func TestNew_UnknownAlgorithm(t *testing.T) {
	_, err := New(Options{Algorithm: "HASH"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.Equal(t, []string{Badger, BTreeAlgorithm, LevelDB, Pebble}, Algorithms())
}

func TestCached(t *testing.T) {
	inner := NewBTree(Options{Name: "cached"})
	e, err := New(Options{Algorithm: BTreeAlgorithm, Name: "cached", CacheSize: 16})
	require.NoError(t, err)
	c := e.(*Cached)
	c.Engine = inner

	assert.Nil(t, c.Put("k", []byte("v")))
	v, ok, err := c.Get("k")
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 1, c.Len())

	// 绕过缓存直接改底层引擎，缓存仍然是旧值，直到事务结束
	assert.Nil(t, inner.Put("k", []byte("v2")))
	v, _, _ = c.Get("k")
	assert.Equal(t, []byte("v"), v)
	c.AfterTxCommit()
	assert.Equal(t, 0, c.Len())
	v, _, _ = c.Get("k")
	assert.Equal(t, []byte("v2"), v)

	assert.Same(t, inner, Unwrap(c))
	_, ok = AsBulkLoader(c)
	assert.False(t, ok)
}
