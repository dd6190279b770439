package utils

import (
	"encoding/binary"
	"math"
)

// EncodeFloat64ForBTree 编码后的字节序和数值顺序一致
func EncodeFloat64ForBTree(value float64) []byte {
	bits := math.Float64bits(value)
	// 负数需要调整顺序，使其符合字节序
	if value < 0 {
		bits = ^bits // 按位取反，保证负数比正数小
	} else {
		bits |= 1 << 63 // 最高位设为 1，使正数比负数大
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits) // 使用大端序存储
	return buf
}

func DecodeFloat64FromBTree(encoded []byte) float64 {
	bits := binary.BigEndian.Uint64(encoded)
	if bits&(1<<63) != 0 { // 最高位是 1，说明是正数
		bits &= ^(uint64(1) << 63) // 还原原始 IEEE 754 格式
	} else { // 负数
		bits = ^bits // 取反恢复原始值
	}
	return math.Float64frombits(bits)
}

// EncodeInt64ForBTree 翻转符号位，负数排在正数前面
func EncodeInt64ForBTree(value int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value)^(1<<63))
	return buf
}

func DecodeInt64FromBTree(encoded []byte) int64 {
	return int64(binary.BigEndian.Uint64(encoded) ^ (1 << 63))
}

func EncodeInt32ForBTree(value int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(value)^(1<<31))
	return buf
}

func DecodeInt32FromBTree(encoded []byte) int32 {
	return int32(binary.BigEndian.Uint32(encoded) ^ (1 << 31))
}
