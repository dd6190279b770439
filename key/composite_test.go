package key

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeKey_AddKeyFlattens(t *testing.T) {
	k := NewCompositeKey("a", NewCompositeKey(1, 2), "b")
	assert.Equal(t, 4, k.Len())
	assert.Equal(t, []any{"a", 1, 2, "b"}, k.Keys())

	keys := k.Keys()
	keys[0] = "z"
	assert.Equal(t, "a", k.Key(0))
}

func TestCompositeKey_PartialCompare(t *testing.T) {
	short := NewCompositeKey(1)
	long := NewCompositeKey(1, 2)
	assert.Equal(t, 0, short.CompareTo(long))
	assert.Equal(t, 0, long.CompareTo(short))
	assert.False(t, short.Equal(long))
	assert.False(t, long.Equal(short))

	assert.True(t, NewCompositeKey(1, 2).Equal(NewCompositeKey(1, 2)))
	assert.Equal(t, NewCompositeKey(1, 2).Hash(), NewCompositeKey(1, 2).Hash())
	assert.NotEqual(t, NewCompositeKey(1, 2).Hash(), NewCompositeKey(1, 3).Hash())

	assert.Equal(t, -1, NewCompositeKey(1, 2).CompareTo(NewCompositeKey(1, 3)))
	assert.Equal(t, 1, NewCompositeKey(2).CompareTo(NewCompositeKey(1, 9)))
}

func TestCompositeKey_Sentinels(t *testing.T) {
	values := []any{nil, false, int64(-5), 3.5, "abc", []byte("x"), time.Now(), NewCompositeKey("a", 1)}
	for _, v := range values {
		x := NewCompositeKey(v)
		assert.Equal(t, 1, NewCompositeKey(AlwaysGreater).CompareTo(x), "%v", v)
		assert.Equal(t, -1, NewCompositeKey(AlwaysLess).CompareTo(x), "%v", v)
		assert.Equal(t, -1, x.CompareTo(NewCompositeKey(AlwaysGreater)), "%v", v)
		assert.Equal(t, 1, x.CompareTo(NewCompositeKey(AlwaysLess)), "%v", v)
	}

	k := NewCompositeKey("a", 2)
	assert.Equal(t, -1, NewCompositeKey("a", AlwaysLess).CompareTo(k))
	assert.Equal(t, 1, NewCompositeKey("a", AlwaysGreater).CompareTo(k))
	assert.Equal(t, 0, Compare(AlwaysGreater, AlwaysGreater))
	assert.Equal(t, -1, Compare(AlwaysLess, AlwaysGreater))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"nil lowest", nil, false, -1},
		{"int vs float", int64(3), 3.5, -1},
		{"int vs int32", int32(7), int64(7), 0},
		{"uint vs negative", uint64(1), int64(-1), 1},
		{"strings", "abc", "abd", -1},
		{"bytes", []byte{2}, []byte{1, 9}, 1},
		{"string before bytes", "zzz", []byte{0}, -1},
		{"scalar vs composite", "a", NewCompositeKey("a", 1), 0},
		{"bool", true, false, 1},
		{"time", time.Unix(10, 0), time.Unix(20, 0), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestEnhance(t *testing.T) {
	k := NewCompositeKey("a")

	from := EnhanceFrom(k, true, 3).(*CompositeKey)
	assert.Equal(t, []any{"a", AlwaysLess, AlwaysLess}, from.Keys())
	from = EnhanceFrom(k, false, 3).(*CompositeKey)
	assert.Equal(t, []any{"a", AlwaysGreater, AlwaysGreater}, from.Keys())

	to := EnhanceTo(k, true, 2).(*CompositeKey)
	assert.Equal(t, []any{"a", AlwaysGreater}, to.Keys())
	to = EnhanceTo(k, false, 2).(*CompositeKey)
	assert.Equal(t, []any{"a", AlwaysLess}, to.Keys())

	// 原来的键不变
	assert.Equal(t, 1, k.Len())
	assert.Equal(t, "x", EnhanceFrom("x", true, 2))

	// 补齐之后，前缀为 a 的完整键都落在 [from, to] 之间
	full := NewCompositeKey("a", "m")
	assert.Equal(t, -1, Compare(EnhanceFrom(k, true, 2), full))
	assert.Equal(t, 1, Compare(EnhanceTo(k, true, 2), full))
	assert.Equal(t, 1, Compare(EnhanceFrom(k, false, 2), full))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(5), Normalize(5))
	assert.Equal(t, int64(5), Normalize(uint8(5)))
	assert.Equal(t, uint64(1<<63), Normalize(uint64(1<<63)))
	assert.Equal(t, float64(float32(1.5)), Normalize(float32(1.5)))
	assert.Equal(t, "s", Normalize("s"))

	ck := Normalize(NewCompositeKey(1, int16(2))).(*CompositeKey)
	assert.Equal(t, []any{int64(1), int64(2)}, ck.Keys())
}

func TestCompositeKey_EqualImpliesHash(t *testing.T) {
	now := time.Now()
	pairs := [][2]*CompositeKey{
		{NewCompositeKey(1), NewCompositeKey(int64(1))},
		{NewCompositeKey(1), NewCompositeKey(1.0)},
		{NewCompositeKey(uint8(7), "a"), NewCompositeKey(int32(7), "a")},
		{NewCompositeKey(0.0), NewCompositeKey(math.Copysign(0, -1))},
		{NewCompositeKey(now), NewCompositeKey(now.UTC())},
		{NewCompositeKey(nil, true, []byte("x")), NewCompositeKey(nil, true, []byte("x"))},
	}
	for _, p := range pairs {
		require.True(t, p[0].Equal(p[1]), "%v %v", p[0], p[1])
		assert.Equal(t, p[0].Hash(), p[1].Hash(), "%v %v", p[0], p[1])
	}

	assert.NotEqual(t, NewCompositeKey(1).Hash(), NewCompositeKey("1").Hash())
	assert.NotEqual(t, NewCompositeKey(1).Hash(), NewCompositeKey(1, 1).Hash())
}

func TestCompositeKey_TrailingSentinel(t *testing.T) {
	k := NewCompositeKey("a")
	assert.Equal(t, 1, k.CompareTo(NewCompositeKey("a", AlwaysLess)))
	assert.Equal(t, -1, k.CompareTo(NewCompositeKey("a", AlwaysGreater)))
	assert.Equal(t, -1, NewCompositeKey("a", AlwaysLess).CompareTo(k))
	assert.Equal(t, 1, Compare("a", NewCompositeKey("a", AlwaysLess)))

	// 普通元素仍然是部分比较
	assert.Equal(t, 0, k.CompareTo(NewCompositeKey("a", 1)))

	// 完整键加一个哨兵之后可以区分包含和不包含
	full := NewCompositeKey("a", 1)
	assert.Equal(t, 1, full.CompareTo(NewCompositeKey("a", 1, AlwaysLess)))
	assert.Equal(t, -1, full.CompareTo(NewCompositeKey("a", 1, AlwaysGreater)))
}

func TestCompareStrict(t *testing.T) {
	short, scalar, long := NewCompositeKey("a"), "a", NewCompositeKey("a", 1)
	assert.Equal(t, 0, Compare(short, long))
	assert.Equal(t, -1, CompareStrict(short, scalar))
	assert.Equal(t, -1, CompareStrict(scalar, long))
	assert.Equal(t, 1, CompareStrict(long, short))
	assert.Equal(t, 0, CompareStrict(NewCompositeKey(1), NewCompositeKey(int64(1))))
	assert.Equal(t, -1, CompareStrict(NewCompositeKey("a", 9), NewCompositeKey("b")))
}
