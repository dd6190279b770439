package definition

import (
	"reflect"
	"slices"

	"github.com/Hain2000/docindex/key"
	"github.com/cockroachdb/errors"
)

// Property 单字段索引
type Property struct {
	Class string
	Field string
	Type  KeyType
}

func NewProperty(class, field string, typ KeyType) *Property {
	return &Property{Class: class, Field: field, Type: typ}
}

func (p *Property) Kind() string            { return KindProperty }
func (p *Property) ClassName() string       { return p.Class }
func (p *Property) Fields() []string        { return []string{p.Field} }
func (p *Property) ParamCount() int         { return 1 }
func (p *Property) NullValuesIgnored() bool { return true }

func (p *Property) Extract(get FieldGetter) (any, error) {
	v, ok := get(p.Field)
	if !ok || v == nil {
		return nil, nil
	}
	return p.Type.Convert(v)
}

func (p *Property) CreateValue(params ...any) (any, error) {
	return createSingle(p.Type, params)
}

func (p *Property) Document() map[string]any {
	return map[string]any{"kind": KindProperty, "class": p.Class, "field": p.Field, "type": string(p.Type)}
}

func createSingle(t KeyType, params []any) (any, error) {
	switch len(params) {
	case 0:
		return nil, nil
	case 1:
		return t.Convert(params[0])
	}
	return nil, errors.Wrapf(ErrParamCount, "expected 1, got %d", len(params))
}

// PropertyList 列表字段，每个元素一个键
type PropertyList struct {
	Class string
	Field string
	Type  KeyType
}

func NewPropertyList(class, field string, typ KeyType) *PropertyList {
	return &PropertyList{Class: class, Field: field, Type: typ}
}

func (p *PropertyList) Kind() string            { return KindList }
func (p *PropertyList) ClassName() string       { return p.Class }
func (p *PropertyList) Fields() []string        { return []string{p.Field} }
func (p *PropertyList) ParamCount() int         { return 1 }
func (p *PropertyList) NullValuesIgnored() bool { return true }

func (p *PropertyList) Extract(get FieldGetter) (any, error) {
	v, ok := get(p.Field)
	if !ok || v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if _, isBytes := v.([]byte); isBytes || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		// 不是列表当成只有一个元素
		return p.Type.Convert(v)
	}
	out := make(Keys, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		if item == nil {
			continue
		}
		k, err := p.Type.Convert(item)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (p *PropertyList) CreateValue(params ...any) (any, error) {
	return createSingle(p.Type, params)
}

func (p *PropertyList) Document() map[string]any {
	return map[string]any{"kind": KindList, "class": p.Class, "field": p.Field, "type": string(p.Type)}
}

type MapBy string

const (
	ByKey   MapBy = "key"
	ByValue MapBy = "value"
)

// PropertyMap map 字段，按 key 或者按 value 建索引
type PropertyMap struct {
	Class string
	Field string
	By    MapBy
	Type  KeyType
}

func NewPropertyMap(class, field string, by MapBy, typ KeyType) *PropertyMap {
	if by != ByValue {
		by = ByKey
	}
	return &PropertyMap{Class: class, Field: field, By: by, Type: typ}
}

func (p *PropertyMap) Kind() string            { return KindMap }
func (p *PropertyMap) ClassName() string       { return p.Class }
func (p *PropertyMap) Fields() []string        { return []string{p.Field} }
func (p *PropertyMap) ParamCount() int         { return 1 }
func (p *PropertyMap) NullValuesIgnored() bool { return true }

func (p *PropertyMap) Extract(get FieldGetter) (any, error) {
	v, ok := get(p.Field)
	if !ok || v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, errors.Wrapf(ErrKeyConversion, "field %s is %T, not a map", p.Field, v)
	}
	out := make(Keys, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		item := iter.Key().Interface()
		if p.By == ByValue {
			item = iter.Value().Interface()
		}
		if item == nil {
			continue
		}
		k, err := p.Type.Convert(item)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, nil
	}
	slices.SortFunc(out, key.Compare)
	return out, nil
}

func (p *PropertyMap) CreateValue(params ...any) (any, error) {
	return createSingle(p.Type, params)
}

func (p *PropertyMap) Document() map[string]any {
	return map[string]any{"kind": KindMap, "class": p.Class, "field": p.Field, "by": string(p.By), "type": string(p.Type)}
}

// Runtime 手动索引的定义，不从记录取值，类型由第一次写入的键推断
type Runtime struct {
	Type KeyType
}

func NewRuntime(typ KeyType) *Runtime {
	return &Runtime{Type: typ}
}

func (r *Runtime) Kind() string            { return KindRuntime }
func (r *Runtime) ClassName() string       { return "" }
func (r *Runtime) Fields() []string        { return nil }
func (r *Runtime) ParamCount() int         { return 1 }
func (r *Runtime) NullValuesIgnored() bool { return false }

func (r *Runtime) Extract(FieldGetter) (any, error) { return nil, nil }

func (r *Runtime) CreateValue(params ...any) (any, error) {
	if len(params) > 1 {
		return key.Normalize(key.NewCompositeKey(params...)), nil
	}
	return createSingle(r.Type, params)
}

func (r *Runtime) Document() map[string]any {
	return map[string]any{"kind": KindRuntime, "type": string(r.Type)}
}
