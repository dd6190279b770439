package key

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// AlwaysGreaterKey 比任何键都大
type AlwaysGreaterKey struct{}

// AlwaysLessKey 比任何键都小
type AlwaysLessKey struct{}

var (
	AlwaysGreater = AlwaysGreaterKey{}
	AlwaysLess    = AlwaysLessKey{}
)

func (AlwaysGreaterKey) String() string { return "+inf" }

func (AlwaysLessKey) String() string { return "-inf" }

// IsSentinel 判断 v 是否为哨兵键
func IsSentinel(v any) bool {
	switch v.(type) {
	case AlwaysGreaterKey, AlwaysLessKey:
		return true
	}
	return false
}

// CompositeKey 有序的多字段键
// 比较是"部分比较"：只比较两边较短长度内的元素，所以 [1] 和 [1, 2] 相等
type CompositeKey struct {
	keys []any
}

func NewCompositeKey(keys ...any) *CompositeKey {
	k := &CompositeKey{keys: make([]any, 0, len(keys))}
	for _, v := range keys {
		k.AddKey(v)
	}
	return k
}

// AddKey 追加一个元素，嵌套的组合键会被展开
func (k *CompositeKey) AddKey(v any) {
	if ck, ok := v.(*CompositeKey); ok {
		k.keys = append(k.keys, ck.keys...)
		return
	}
	k.keys = append(k.keys, v)
}

// Keys 返回元素的拷贝
func (k *CompositeKey) Keys() []any {
	out := make([]any, len(k.keys))
	copy(out, k.keys)
	return out
}

func (k *CompositeKey) Len() int { return len(k.keys) }

func (k *CompositeKey) Key(i int) any { return k.keys[i] }

// Reset 只能用在临时键上，已经存进索引的键不能改
func (k *CompositeKey) Reset() { k.keys = k.keys[:0] }

func (k *CompositeKey) CompareTo(other *CompositeKey) int {
	n := min(len(k.keys), len(other.keys))
	for i := 0; i < n; i++ {
		if c := Compare(k.keys[i], other.keys[i]); c != 0 {
			return c
		}
	}
	// 较长一侧紧跟着的是哨兵时由哨兵决定，[a, -inf] < [a] < [a, +inf]
	switch {
	case len(k.keys) > n:
		return sentinelSign(k.keys[n])
	case len(other.keys) > n:
		return -sentinelSign(other.keys[n])
	}
	return 0
}

func sentinelSign(v any) int {
	switch v.(type) {
	case AlwaysLessKey:
		return -1
	case AlwaysGreaterKey:
		return 1
	}
	return 0
}

// Equal 是结构相等：长度相同且每个元素相等
// 和 CompareTo 不一致是有意的，[1] 和 [1, 2] 比较为 0 但不相等
func (k *CompositeKey) Equal(other *CompositeKey) bool {
	if other == nil || len(k.keys) != len(other.keys) {
		return false
	}
	for i := range k.keys {
		if rank(k.keys[i]) != rank(other.keys[i]) || Compare(k.keys[i], other.keys[i]) != 0 {
			return false
		}
	}
	return true
}

// Hash 和 Equal 一致：Equal 的两个键 Hash 一定相同
func (k *CompositeKey) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range k.keys {
		r := rank(v)
		_, _ = d.Write([]byte{byte(r)})
		switch r {
		case rankNumber:
			// 不同类型的数字按 float64 比较，所以也按 float64 算 hash
			f := toNumber(v).float()
			switch {
			case f == 0:
				f = 0
			case math.IsNaN(f):
				f = math.NaN()
			}
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
			_, _ = d.Write(buf[:])
		case rankBool:
			if v.(bool) {
				_, _ = d.Write([]byte{1})
			} else {
				_, _ = d.Write([]byte{0})
			}
		case rankString:
			_, _ = d.WriteString(v.(string))
		case rankBytes:
			_, _ = d.Write(v.([]byte))
		case rankTime:
			tm := v.(time.Time)
			binary.BigEndian.PutUint64(buf[:], uint64(tm.Unix()))
			_, _ = d.Write(buf[:])
			binary.BigEndian.PutUint32(buf[:4], uint32(tm.Nanosecond()))
			_, _ = d.Write(buf[:4])
		case rankComparable:
			_, _ = fmt.Fprintf(d, "%T:%v", v, v)
		case rankOther:
			_, _ = fmt.Fprint(d, v)
		}
		_, _ = d.Write([]byte{'|'})
	}
	return d.Sum64()
}

func (k *CompositeKey) String() string {
	parts := make([]string, 0, len(k.keys))
	for _, v := range k.keys {
		parts = append(parts, fmt.Sprint(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
