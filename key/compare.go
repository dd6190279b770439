package key

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strings"
	"time"
)

// Comparable 由自定义键类型实现（例如 RID），other 总是同一类型
type Comparable interface {
	CompareTo(other any) int
}

const (
	rankLess = iota
	rankNil
	rankBool
	rankNumber
	rankString
	rankBytes
	rankTime
	rankComparable
	rankOther
	rankComposite
	rankGreater
)

func rank(v any) int {
	switch v.(type) {
	case AlwaysLessKey:
		return rankLess
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return rankNumber
	case string:
		return rankString
	case []byte:
		return rankBytes
	case time.Time:
		return rankTime
	case *CompositeKey:
		return rankComposite
	case AlwaysGreaterKey:
		return rankGreater
	case Comparable:
		return rankComparable
	default:
		return rankOther
	}
}

// Compare 是默认比较器，索引里所有的键都用它排序
// 顺序: AlwaysLess < nil < bool < 数字 < string < []byte < time < Comparable < 组合键 < AlwaysGreater
// 标量和组合键比较时，标量被看作只有一个元素的组合键
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra == rankLess || ra == rankGreater || rb == rankLess || rb == rankGreater {
		return cmp.Compare(ra, rb)
	}
	if ra == rankComposite || rb == rankComposite {
		ca, ok := a.(*CompositeKey)
		if !ok {
			ca = NewCompositeKey(a)
		}
		cb, ok := b.(*CompositeKey)
		if !ok {
			cb = NewCompositeKey(b)
		}
		return ca.CompareTo(cb)
	}
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch ra {
	case rankNil:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBytes:
		return bytes.Compare(a.([]byte), b.([]byte))
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankComparable:
		if fmt.Sprintf("%T", a) != fmt.Sprintf("%T", b) {
			return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
		}
		return a.(Comparable).CompareTo(b)
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// CompareStrict 在 Compare 相等时再按宽度排，给有序容器用的全序: [a] < "a" < [a, 1]
// 和 engine 编码之后的字节序一致
func CompareStrict(a, b any) int {
	if c := Compare(a, b); c != 0 {
		return c
	}
	return cmp.Compare(width(a), width(b))
}

func width(k any) int {
	if ck, ok := k.(*CompositeKey); ok {
		return 2 * ck.Len()
	}
	return 3
}

type number struct {
	kind int // 0 有符号 1 无符号 2 浮点
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) number {
	switch n := v.(type) {
	case int:
		return number{i: int64(n)}
	case int8:
		return number{i: int64(n)}
	case int16:
		return number{i: int64(n)}
	case int32:
		return number{i: int64(n)}
	case int64:
		return number{i: n}
	case uint:
		return number{kind: 1, u: uint64(n)}
	case uint8:
		return number{kind: 1, u: uint64(n)}
	case uint16:
		return number{kind: 1, u: uint64(n)}
	case uint32:
		return number{kind: 1, u: uint64(n)}
	case uint64:
		return number{kind: 1, u: n}
	case float32:
		return number{kind: 2, f: float64(n)}
	case float64:
		return number{kind: 2, f: n}
	}
	return number{kind: 2, f: math.NaN()}
}

func (n number) float() float64 {
	switch n.kind {
	case 0:
		return float64(n.i)
	case 1:
		return float64(n.u)
	default:
		return n.f
	}
}

func compareNumbers(a, b any) int {
	x, y := toNumber(a), toNumber(b)
	switch {
	case x.kind == 0 && y.kind == 0:
		return cmp.Compare(x.i, y.i)
	case x.kind == 1 && y.kind == 1:
		return cmp.Compare(x.u, y.u)
	case x.kind == 0 && y.kind == 1:
		if x.i < 0 {
			return -1
		}
		return cmp.Compare(uint64(x.i), y.u)
	case x.kind == 1 && y.kind == 0:
		if y.i < 0 {
			return 1
		}
		return cmp.Compare(x.u, uint64(y.i))
	}
	return cmp.Compare(x.float(), y.float())
}

// Normalize 把 Go 的数值类型统一成 int64 / uint64 / float64，组合键递归处理
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return normalizeUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return normalizeUint(n)
	case float32:
		return float64(n)
	case *CompositeKey:
		out := &CompositeKey{keys: make([]any, 0, len(n.keys))}
		for _, k := range n.keys {
			out.keys = append(out.keys, Normalize(k))
		}
		return out
	}
	return v
}

func normalizeUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}
