package engine

import (
	"bytes"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKey_RoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 123).UTC()
	values := []any{
		nil, true, false,
		int64(-42), int64(0), int64(math.MaxInt64), uint64(math.MaxUint64),
		-3.25, 0.0, 1e300,
		"", "hello", "a\x00b",
		[]byte{}, []byte{0, 1, 0xFF},
		now,
		data.NewRID(3, 77),
		key.AlwaysLess, key.AlwaysGreater,
		key.NewCompositeKey("x", int64(1), key.AlwaysGreater),
		key.NewCompositeKey("x"),
		key.NewCompositeKey(),
	}
	for _, v := range values {
		enc, err := EncodeKey(v)
		require.NoError(t, err, "%v", v)
		got, err := DecodeKey(enc)
		require.NoError(t, err, "%v", v)
		if ck, ok := v.(*key.CompositeKey); ok {
			assert.True(t, ck.Equal(got.(*key.CompositeKey)))
			continue
		}
		assert.Equal(t, v, got)
	}

	// int 会被规范成 int64
	enc, err := EncodeKey(7)
	require.NoError(t, err)
	got, err := DecodeKey(enc)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

func TestEncodeKey_PreservesOrder(t *testing.T) {
	values := []any{
		key.AlwaysLess,
		nil,
		false, true,
		int64(math.MinInt64), -1.5, int64(-1), int64(0), 0.5, int64(1), int64(1000), uint64(math.MaxUint64),
		"", "a", "a\x00", "a\x01", "ab", "b",
		[]byte{0}, []byte{0, 0}, []byte{1},
		time.Unix(0, 0), time.Unix(100, 0),
		data.NewRID(-1, -1), data.NewRID(0, 5), data.NewRID(1, 0),
		key.AlwaysGreater,
	}
	encoded := make([][]byte, 0, len(values))
	for _, v := range values {
		enc, err := EncodeKey(v)
		require.NoError(t, err)
		encoded = append(encoded, enc)
	}
	assert.True(t, slices.IsSortedFunc(encoded, bytes.Compare))
	for i := 1; i < len(encoded); i++ {
		assert.Equal(t, -1, bytes.Compare(encoded[i-1], encoded[i]), "%v < %v", values[i-1], values[i])
	}

	// 前缀相同的组合键: 短的在前，哨兵在两头
	composites := []any{
		key.NewCompositeKey("a", key.AlwaysLess),
		key.NewCompositeKey("a"),
		key.NewCompositeKey("a", int64(1)),
		key.NewCompositeKey("a", int64(1), key.AlwaysGreater),
		key.NewCompositeKey("a", int64(2)),
		key.NewCompositeKey("a", key.AlwaysGreater),
		key.NewCompositeKey("b"),
	}
	prev, err := EncodeKey(composites[0])
	require.NoError(t, err)
	for _, v := range composites[1:] {
		enc, err := EncodeKey(v)
		require.NoError(t, err)
		assert.Equal(t, -1, bytes.Compare(prev, enc), "%v", v)
		prev = enc
	}
}

// 标量和组合键混在一起时，字节序和 key.Compare 不能冲突
func TestEncodeKey_MatchesCompare(t *testing.T) {
	values := []any{
		key.AlwaysLess, key.AlwaysGreater,
		nil, true, int64(-1), int64(1), 1.0, 2.5, "", "a", "b", []byte("a"), time.Unix(5, 0), data.NewRID(1, 1),
		key.NewCompositeKey("a"),
		key.NewCompositeKey("a", key.AlwaysLess),
		key.NewCompositeKey("a", key.AlwaysGreater),
		key.NewCompositeKey("a", int64(1)),
		key.NewCompositeKey("b", int64(0)),
		key.NewCompositeKey(int64(1), "x"),
		key.NewCompositeKey(nil, "x"),
	}
	for _, x := range values {
		for _, y := range values {
			c := key.Compare(x, y)
			if c == 0 {
				continue
			}
			ex, err := EncodeKey(x)
			require.NoError(t, err)
			ey, err := EncodeKey(y)
			require.NoError(t, err)
			assert.Equal(t, c, bytes.Compare(ex, ey), "%v vs %v", x, y)
		}
	}
}

func TestDecodeKey_Invalid(t *testing.T) {
	_, err := DecodeKey(nil)
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
	_, err = DecodeKey([]byte{0x99})
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
	_, err = DecodeKey([]byte{tagString, 'a'})
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)

	enc, err := EncodeKey("a")
	require.NoError(t, err)
	_, err = DecodeKey(enc[:len(enc)-1])
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
	_, err = DecodeKey(append(enc, 0x05))
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)

	_, err = EncodeKey(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}
