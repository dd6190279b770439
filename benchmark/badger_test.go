package benchmark

import (
	"testing"

	"github.com/Hain2000/docindex/engine"
)

func BenchmarkPutGetRemoveBadger(b *testing.B) {
	benchmarkPutGetRemove(b, engine.Badger)
}
