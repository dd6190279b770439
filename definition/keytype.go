package definition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/key"
	"github.com/cockroachdb/errors"
)

// KeyType 索引键的类型，写入之前会把字段值转换成这个类型
type KeyType string

const (
	TypeAny      KeyType = "ANY"
	TypeString   KeyType = "STRING"
	TypeInteger  KeyType = "INTEGER"
	TypeFloat    KeyType = "FLOAT"
	TypeBoolean  KeyType = "BOOLEAN"
	TypeBinary   KeyType = "BINARY"
	TypeDateTime KeyType = "DATETIME"
	TypeLink     KeyType = "LINK"
)

func ParseKeyType(s string) (KeyType, error) {
	if s == "" {
		return TypeAny, nil
	}
	t := KeyType(strings.ToUpper(s))
	switch t {
	case TypeAny, TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeBinary, TypeDateTime, TypeLink:
		return t, nil
	}
	return "", errors.Wrapf(ErrInvalidDefinition, "unknown key type %q", s)
}

// TypeOf 推断值的键类型，手动索引用第一次写入的键决定类型
func TypeOf(v any) KeyType {
	switch key.Normalize(v).(type) {
	case string:
		return TypeString
	case int64, uint64:
		return TypeInteger
	case float64:
		return TypeFloat
	case bool:
		return TypeBoolean
	case []byte:
		return TypeBinary
	case time.Time:
		return TypeDateTime
	case data.RID:
		return TypeLink
	}
	return TypeAny
}

// Convert 把 v 转换成 t 类型，nil 原样返回
func (t KeyType) Convert(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if ck, ok := v.(*key.CompositeKey); ok {
		if t == TypeAny {
			return key.Normalize(ck), nil
		}
		if ck.Len() != 1 {
			return nil, errors.Wrapf(ErrKeyConversion, "%s to %s", ck, t)
		}
		v = ck.Key(0)
	}
	v = key.Normalize(v)
	fail := func() (any, error) {
		return nil, errors.Wrapf(ErrKeyConversion, "%v (%T) to %s", v, v, t)
	}

	switch t {
	case TypeAny, "":
		if id, ok := v.(data.Identifiable); ok {
			return id.Identity(), nil
		}
		return v, nil
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return fmt.Sprint(v), nil
	case TypeInteger:
		switch x := v.(type) {
		case int64, uint64:
			return x, nil
		case float64:
			if x != math.Trunc(x) {
				return fail()
			}
			return int64(x), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return fail()
			}
			return n, nil
		}
	case TypeFloat:
		switch x := v.(type) {
		case int64:
			return float64(x), nil
		case uint64:
			return float64(x), nil
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return fail()
			}
			return f, nil
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return fail()
			}
			return b, nil
		}
	case TypeBinary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case TypeDateTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case int64:
			return time.UnixMilli(x).UTC(), nil
		case string:
			tm, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return fail()
			}
			return tm, nil
		}
	case TypeLink:
		switch x := v.(type) {
		case data.Identifiable:
			return x.Identity(), nil
		case string:
			rid, err := data.ParseRID(x)
			if err != nil {
				return fail()
			}
			return rid, nil
		}
	}
	return fail()
}
