package benchmark

import (
	"context"
	"os"
	"testing"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/index"
	"github.com/Hain2000/docindex/tx"
	"github.com/Hain2000/docindex/utils"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

var ix *index.Index

func openIndex(algorithm string) func() {
	dir, err := os.MkdirTemp("", "docindex-bench")
	if err != nil {
		panic(err)
	}
	eng, err := engine.New(engine.Options{Algorithm: algorithm, Name: "bench", DirPath: dir})
	if err != nil {
		panic(err)
	}
	ix = index.New(eng, index.Options{})
	if err := ix.Create(context.Background(), index.Config{Name: "bench", Type: index.NotUnique}); err != nil {
		panic(err)
	}

	return func() {
		_ = ix.Close()
		_ = os.RemoveAll(dir)
	}
}

func benchmarkPutGetRemove(b *testing.B, algorithm string) {
	closer := openIndex(algorithm)
	defer closer()

	b.Run("put", benchmarkPut)
	b.Run("get", benchmarkGet)
	b.Run("stream", benchmarkStream)
	b.Run("remove", benchmarkRemove)
	b.Run("commit", benchmarkCommit)
}

func BenchmarkPutGetRemove(b *testing.B) {
	benchmarkPutGetRemove(b, engine.BTreeAlgorithm)
}

func benchmarkPut(b *testing.B) {
	ctx := context.Background()
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		err := ix.Put(ctx, utils.GetTestKey(i), data.NewRID(1, int64(i)))
		assert.Nil(b, err)
	}
}

func benchmarkGet(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		err := ix.Put(ctx, utils.GetTestKey(i), data.NewRID(1, int64(i)))
		assert.Nil(b, err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = ix.Get(ctx, utils.GetTestKey(rand.Intn(b.N)))
	}
}

func benchmarkStream(b *testing.B) {
	ctx := context.Background()
	t := index.NewTxIndex(ix)
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		c, err := t.Major(ctx, nil, utils.GetTestKey(rand.Intn(1000)), true, true, index.Limit(100))
		assert.Nil(b, err)
		for c.Next() {
		}
		c.Close()
	}
}

func benchmarkRemove(b *testing.B) {
	ctx := context.Background()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := ix.Remove(ctx, utils.GetTestKey(i), data.NewRID(1, int64(i)))
		assert.Nil(b, err)
	}
}

// 每个事务写 10 个键
func benchmarkCommit(b *testing.B) {
	ctx := context.Background()
	t := index.NewTxIndex(ix)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		trx := tx.Begin(nil)
		for j := 0; j < 10; j++ {
			err := t.Put(ctx, trx, utils.GetTestKey(i*10+j), data.NewRID(2, int64(i*10+j)))
			assert.Nil(b, err)
		}
		assert.Nil(b, trx.Commit(ctx))
	}
}
