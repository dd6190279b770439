package engine

import (
	"encoding/binary"
	"time"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/key"
	"github.com/Hain2000/docindex/utils"
	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// 编码之后的字节序和 key.Compare 的顺序一致，持久化引擎直接按字节比较
// 组合键没有单独的类型标记，元素依次编码后以 compositeEnd 结尾，标量以 scalarEnd 结尾，
// 这样标量和组合键混在一起时也是按第一个元素排序
const (
	topLess      byte = 0x00 // 单独的 AlwaysLess
	tagLess      byte = 0x01
	compositeEnd byte = 0x02
	scalarEnd    byte = 0x03
	tagNil       byte = 0x05
	tagBool      byte = 0x10
	tagNumber    byte = 0x20
	tagString    byte = 0x30
	tagBytes     byte = 0x40
	tagTime      byte = 0x50
	tagRID       byte = 0x58
	tagGreater   byte = 0xFE
	topGreater   byte = 0xFF // 单独的 AlwaysGreater
)

// 数字: 先按 float64 排序，相同时再按类型和精确值排
const (
	numberInt   byte = 0x00
	numberUint  byte = 0x01
	numberFloat byte = 0x02
)

// EncodeKey 把键编码成保序的字节
func EncodeKey(k any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	switch v := key.Normalize(k).(type) {
	case key.AlwaysLessKey:
		return []byte{topLess}, nil
	case key.AlwaysGreaterKey:
		return []byte{topGreater}, nil
	case *key.CompositeKey:
		for i := 0; i < v.Len(); i++ {
			if err := appendElement(buf, v.Key(i)); err != nil {
				return nil, err
			}
		}
		_ = buf.WriteByte(compositeEnd)
	default:
		if err := appendElement(buf, v); err != nil {
			return nil, err
		}
		_ = buf.WriteByte(scalarEnd)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

func appendElement(buf *bytebufferpool.ByteBuffer, k any) error {
	switch v := k.(type) {
	case key.AlwaysLessKey:
		_ = buf.WriteByte(tagLess)
	case key.AlwaysGreaterKey:
		_ = buf.WriteByte(tagGreater)
	case nil:
		_ = buf.WriteByte(tagNil)
	case bool:
		_ = buf.WriteByte(tagBool)
		if v {
			_ = buf.WriteByte(1)
		} else {
			_ = buf.WriteByte(0)
		}
	case int64:
		_ = buf.WriteByte(tagNumber)
		_, _ = buf.Write(utils.EncodeFloat64ForBTree(float64(v)))
		_ = buf.WriteByte(numberInt)
		_, _ = buf.Write(utils.EncodeInt64ForBTree(v))
	case uint64:
		_ = buf.WriteByte(tagNumber)
		_, _ = buf.Write(utils.EncodeFloat64ForBTree(float64(v)))
		_ = buf.WriteByte(numberUint)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], v)
		_, _ = buf.Write(tmp[:])
	case float64:
		_ = buf.WriteByte(tagNumber)
		_, _ = buf.Write(utils.EncodeFloat64ForBTree(v))
		_ = buf.WriteByte(numberFloat)
	case string:
		_ = buf.WriteByte(tagString)
		appendEscaped(buf, []byte(v))
	case []byte:
		_ = buf.WriteByte(tagBytes)
		appendEscaped(buf, v)
	case time.Time:
		_ = buf.WriteByte(tagTime)
		_, _ = buf.Write(utils.EncodeInt64ForBTree(v.UnixNano()))
	case data.RID:
		_ = buf.WriteByte(tagRID)
		_, _ = buf.Write(utils.EncodeInt32ForBTree(v.Cluster))
		_, _ = buf.Write(utils.EncodeInt64ForBTree(v.Position))
	default:
		return errors.Wrapf(ErrUnsupportedKey, "%T", k)
	}
	return nil
}

// 0x00 转义成 0x00 0xFF，结尾是 0x00 0x01
func appendEscaped(buf *bytebufferpool.ByteBuffer, b []byte) {
	for _, c := range b {
		_ = buf.WriteByte(c)
		if c == 0x00 {
			_ = buf.WriteByte(0xFF)
		}
	}
	_, _ = buf.Write([]byte{0x00, 0x01})
}

// DecodeKey 是 EncodeKey 的逆过程
func DecodeKey(b []byte) (any, error) {
	if len(b) == 1 {
		switch b[0] {
		case topLess:
			return key.AlwaysLess, nil
		case topGreater:
			return key.AlwaysGreater, nil
		}
	}
	if len(b) == 1 && b[0] == compositeEnd {
		return key.NewCompositeKey(), nil
	}
	var elems []any
	for {
		v, rest, err := decodeOne(b)
		if err != nil {
			return nil, err
		}
		if len(rest) == 0 {
			return nil, errors.Wrap(ErrInvalidKeyEncoding, "missing end marker")
		}
		switch rest[0] {
		case scalarEnd:
			if len(elems) != 0 || len(rest) != 1 {
				return nil, errors.Wrap(ErrInvalidKeyEncoding, "bad scalar key")
			}
			return v, nil
		case compositeEnd:
			if len(rest) != 1 {
				return nil, errors.Wrap(ErrInvalidKeyEncoding, "trailing bytes")
			}
			return key.NewCompositeKey(append(elems, v)...), nil
		}
		elems = append(elems, v)
		b = rest
	}
}

func decodeOne(b []byte) (any, []byte, error) {
	if len(b) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidKeyEncoding, "empty key")
	}
	tag, b := b[0], b[1:]
	short := func() (any, []byte, error) {
		return nil, nil, errors.Wrapf(ErrInvalidKeyEncoding, "short key for tag %#x", tag)
	}

	switch tag {
	case tagLess:
		return key.AlwaysLess, b, nil
	case tagGreater:
		return key.AlwaysGreater, b, nil
	case tagNil:
		return nil, b, nil
	case tagBool:
		if len(b) < 1 {
			return short()
		}
		return b[0] == 1, b[1:], nil
	case tagNumber:
		if len(b) < 9 {
			return short()
		}
		f := utils.DecodeFloat64FromBTree(b[:8])
		kind := b[8]
		b = b[9:]
		switch kind {
		case numberFloat:
			return f, b, nil
		case numberInt:
			if len(b) < 8 {
				return short()
			}
			return utils.DecodeInt64FromBTree(b[:8]), b[8:], nil
		case numberUint:
			if len(b) < 8 {
				return short()
			}
			return binary.BigEndian.Uint64(b[:8]), b[8:], nil
		}
		return nil, nil, errors.Wrapf(ErrInvalidKeyEncoding, "unknown number kind %#x", kind)
	case tagString, tagBytes:
		raw, rest, err := decodeEscaped(b)
		if err != nil {
			return nil, nil, err
		}
		if tag == tagString {
			return string(raw), rest, nil
		}
		return raw, rest, nil
	case tagTime:
		if len(b) < 8 {
			return short()
		}
		return time.Unix(0, utils.DecodeInt64FromBTree(b[:8])).UTC(), b[8:], nil
	case tagRID:
		if len(b) < 12 {
			return short()
		}
		return data.NewRID(utils.DecodeInt32FromBTree(b[:4]), utils.DecodeInt64FromBTree(b[4:12])), b[12:], nil
	}
	return nil, nil, errors.Wrapf(ErrInvalidKeyEncoding, "unknown tag %#x", tag)
}

func decodeEscaped(b []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case 0x01:
			return out, b[i+2:], nil
		case 0xFF:
			out = append(out, 0x00)
			i++
		default:
			return nil, nil, errors.Wrapf(ErrInvalidKeyEncoding, "bad escape %#x", b[i+1])
		}
	}
	return nil, nil, errors.Wrap(ErrInvalidKeyEncoding, "unterminated string")
}

// successor 返回严格大于 k 的最小字节串，反向 seek 用
func successor(k []byte) []byte {
	out := make([]byte, len(k)+1)
	copy(out, k)
	return out
}
