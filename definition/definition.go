package definition

import (
	"github.com/Hain2000/docindex/data"
	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownDefinition = errors.New("unknown index definition kind")
	ErrInvalidDefinition = errors.New("invalid index definition")
	ErrParamCount        = errors.New("too many parameters for index definition")
	ErrKeyConversion     = errors.New("value cannot be converted to the index key type")
)

const (
	KindProperty  = "property"
	KindComposite = "composite"
	KindList      = "list"
	KindMap       = "map"
	KindRuntime   = "runtime"
)

// Record 被索引的记录
type Record interface {
	data.Identifiable
	Class() string
	Cluster() string
	Field(name string) (any, bool)
	// OriginalField 返回本次修改之前的值，没有修改过就和 Field 一样
	OriginalField(name string) (any, bool)
	DirtyFields() []string
}

// FieldGetter 取字段值，Record.Field 和 Record.OriginalField 都满足
type FieldGetter func(name string) (any, bool)

// Keys 一条记录产生多个键时 Extract 的返回值（列表、map 字段）
type Keys []any

// Definition 描述索引键如何从记录中得到
type Definition interface {
	Kind() string
	ClassName() string
	Fields() []string
	ParamCount() int
	// Extract 返回单个键、Keys 或者 nil（nil 表示这条记录不进索引）
	Extract(get FieldGetter) (any, error)
	// CreateValue 用查询参数构造键，组合键允许只给前几个字段
	CreateValue(params ...any) (any, error)
	NullValuesIgnored() bool
	Document() map[string]any
}

// Extract 从记录当前的值里取键
func Extract(d Definition, r Record) (any, error) {
	return d.Extract(r.Field)
}

// ExtractOriginal 从记录修改之前的值里取键
func ExtractOriginal(d Definition, r Record) (any, error) {
	return d.Extract(r.OriginalField)
}

// Flatten 把 Extract 的结果展开成键列表
func Flatten(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case Keys:
		return []any(t)
	}
	return []any{v}
}

// IsAutomatic 自动索引跟随类的记录变化，手动索引只能直接写
func IsAutomatic(d Definition) bool {
	return d != nil && d.ClassName() != ""
}

// Touches 判断修改的字段里有没有该定义用到的字段
func Touches(d Definition, dirty []string) bool {
	for _, f := range d.Fields() {
		for _, n := range dirty {
			if f == n {
				return true
			}
		}
	}
	return false
}

// FromDocument 从描述符文档还原定义
func FromDocument(doc map[string]any) (Definition, error) {
	if doc == nil {
		return nil, nil
	}
	kind, _ := doc["kind"].(string)
	class, _ := doc["class"].(string)
	switch kind {
	case KindProperty:
		typ, err := ParseKeyType(str(doc, "type"))
		if err != nil {
			return nil, err
		}
		return NewProperty(class, str(doc, "field"), typ), nil
	case KindList:
		typ, err := ParseKeyType(str(doc, "type"))
		if err != nil {
			return nil, err
		}
		return NewPropertyList(class, str(doc, "field"), typ), nil
	case KindMap:
		typ, err := ParseKeyType(str(doc, "type"))
		if err != nil {
			return nil, err
		}
		return NewPropertyMap(class, str(doc, "field"), MapBy(str(doc, "by")), typ), nil
	case KindRuntime:
		typ, err := ParseKeyType(str(doc, "type"))
		if err != nil {
			return nil, err
		}
		return NewRuntime(typ), nil
	case KindComposite:
		raw, _ := doc["definitions"].([]any)
		defs := make([]Definition, 0, len(raw))
		for _, r := range raw {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, errors.Wrap(ErrInvalidDefinition, "composite member is not a document")
			}
			d, err := FromDocument(m)
			if err != nil {
				return nil, err
			}
			defs = append(defs, d)
		}
		c, err := NewComposite(class, defs...)
		if err != nil {
			return nil, err
		}
		if v, ok := doc["nullValuesIgnored"].(bool); ok {
			c.IgnoreNulls = v
		}
		return c, nil
	}
	return nil, errors.Wrapf(ErrUnknownDefinition, "%q", kind)
}

func str(doc map[string]any, name string) string {
	s, _ := doc[name].(string)
	return s
}
