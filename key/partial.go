package key

// SearchMode 决定部分组合键缺失的字段用哪个哨兵补齐
type SearchMode int8

const (
	// LowestBoundary 用 AlwaysLess 补齐
	LowestBoundary SearchMode = iota + 1

	// HighestBoundary 用 AlwaysGreater 补齐
	HighestBoundary
)

// Enhance 把少于 paramCount 个字段的组合键补齐到 paramCount 个字段
// 非组合键、已经完整的键原样返回
func Enhance(k any, paramCount int, mode SearchMode) any {
	ck, ok := k.(*CompositeKey)
	if !ok || paramCount <= ck.Len() {
		return k
	}
	fill := any(AlwaysLess)
	if mode == HighestBoundary {
		fill = AlwaysGreater
	}
	out := NewCompositeKey(ck)
	for out.Len() < paramCount {
		out.AddKey(fill)
	}
	return out
}

// EnhanceFrom 处理范围的起点：包含用 AlwaysLess，不包含用 AlwaysGreater
func EnhanceFrom(k any, inclusive bool, paramCount int) any {
	if inclusive {
		return Enhance(k, paramCount, LowestBoundary)
	}
	return Enhance(k, paramCount, HighestBoundary)
}

// EnhanceTo 处理范围的终点：包含用 AlwaysGreater，不包含用 AlwaysLess
func EnhanceTo(k any, inclusive bool, paramCount int) any {
	if inclusive {
		return Enhance(k, paramCount, HighestBoundary)
	}
	return Enhance(k, paramCount, LowestBoundary)
}
