package data

import (
	"encoding/binary"
	"hash/crc32"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

var (
	ErrInvalidCRC       = errors.New("invalid crc value, value container maybe corrupted")
	ErrInvalidContainer = errors.New("invalid value container")
)

type ContainerType = byte

const (
	// ContainerSingle 唯一索引和字典用，只有一个 RID
	ContainerSingle ContainerType = iota + 1

	// ContainerSet 非唯一索引用，有序的 RID 集合
	ContainerSet
)

// ContainerName 写进描述符里的值容器名
func ContainerName(t ContainerType) string {
	if t == ContainerSingle {
		return "single"
	}
	return "set"
}

// EncodeContainer 编码索引的值
// {crc(4) | type(1) | count(varint) | cluster(varint) | position(varint) ...}
func EncodeContainer(typ ContainerType, rids []RID) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var tmp [binary.MaxVarintLen64]byte
	_, _ = buf.Write([]byte{0, 0, 0, 0, typ})
	n := binary.PutUvarint(tmp[:], uint64(len(rids)))
	_, _ = buf.Write(tmp[:n])
	for _, r := range rids {
		n = binary.PutVarint(tmp[:], int64(r.Cluster))
		_, _ = buf.Write(tmp[:n])
		n = binary.PutVarint(tmp[:], r.Position)
		_, _ = buf.Write(tmp[:n])
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	crc := crc32.ChecksumIEEE(out[4:])
	binary.LittleEndian.PutUint32(out[:4], crc)
	return out
}

// DecodeContainer 返回值容器里的 RID 和类型
func DecodeContainer(buf []byte) (ContainerType, []RID, error) {
	if len(buf) < 6 {
		return 0, nil, ErrInvalidContainer
	}
	if crc32.ChecksumIEEE(buf[4:]) != binary.LittleEndian.Uint32(buf[:4]) {
		return 0, nil, ErrInvalidCRC
	}
	typ := buf[4]
	idx := 5
	count, n := binary.Uvarint(buf[idx:])
	if n <= 0 {
		return 0, nil, ErrInvalidContainer
	}
	idx += n
	rids := make([]RID, 0, count)
	for i := uint64(0); i < count; i++ {
		c, n := binary.Varint(buf[idx:])
		if n <= 0 {
			return 0, nil, ErrInvalidContainer
		}
		idx += n
		p, n := binary.Varint(buf[idx:])
		if n <= 0 {
			return 0, nil, ErrInvalidContainer
		}
		idx += n
		rids = append(rids, RID{Cluster: int32(c), Position: p})
	}
	return typ, rids, nil
}

func compareRID(a, b RID) int { return a.CompareTo(b) }

// SortRIDs 排序并去重
func SortRIDs(rids []RID) []RID {
	slices.SortFunc(rids, compareRID)
	return slices.Compact(rids)
}

// AddRID 往有序集合里插入，已经存在返回 false
func AddRID(set []RID, r RID) ([]RID, bool) {
	i, found := slices.BinarySearchFunc(set, r, compareRID)
	if found {
		return set, false
	}
	return slices.Insert(set, i, r), true
}

// RemoveRID 从有序集合里删除，不存在返回 false
func RemoveRID(set []RID, r RID) ([]RID, bool) {
	i, found := slices.BinarySearchFunc(set, r, compareRID)
	if !found {
		return set, false
	}
	return slices.Delete(set, i, i+1), true
}

func ContainsRID(set []RID, r RID) bool {
	_, found := slices.BinarySearchFunc(set, r, compareRID)
	return found
}
