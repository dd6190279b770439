package definition

import (
	"github.com/Hain2000/docindex/key"
	"github.com/cockroachdb/errors"
)

// Composite 多字段索引，键是 key.CompositeKey
// 最多允许一个子定义是多值的（列表或 map），它的每个值各产生一个组合键
type Composite struct {
	Class       string
	Definitions []Definition
	IgnoreNulls bool
}

func NewComposite(class string, defs ...Definition) (*Composite, error) {
	if len(defs) == 0 {
		return nil, errors.Wrap(ErrInvalidDefinition, "composite definition without fields")
	}
	multi := 0
	for _, d := range defs {
		switch d.(type) {
		case *PropertyList, *PropertyMap:
			multi++
		case *Property:
		default:
			return nil, errors.Wrapf(ErrInvalidDefinition, "%s cannot be part of a composite definition", d.Kind())
		}
	}
	if multi > 1 {
		return nil, errors.Wrap(ErrInvalidDefinition, "only one multi-value field is allowed in a composite definition")
	}
	return &Composite{Class: class, Definitions: defs, IgnoreNulls: true}, nil
}

func (c *Composite) Kind() string            { return KindComposite }
func (c *Composite) ClassName() string       { return c.Class }
func (c *Composite) NullValuesIgnored() bool { return c.IgnoreNulls }

func (c *Composite) Fields() []string {
	fields := make([]string, 0, len(c.Definitions))
	for _, d := range c.Definitions {
		fields = append(fields, d.Fields()...)
	}
	return fields
}

func (c *Composite) ParamCount() int {
	n := 0
	for _, d := range c.Definitions {
		n += d.ParamCount()
	}
	return n
}

func (c *Composite) Extract(get FieldGetter) (any, error) {
	parts := make([]any, len(c.Definitions))
	multiIdx := -1
	var multi Keys
	for i, d := range c.Definitions {
		v, err := d.Extract(get)
		if err != nil {
			return nil, err
		}
		if v == nil {
			if c.IgnoreNulls {
				return nil, nil
			}
			continue
		}
		if ks, ok := v.(Keys); ok {
			multiIdx, multi = i, ks
			continue
		}
		parts[i] = v
	}
	if multiIdx < 0 {
		return key.NewCompositeKey(parts...), nil
	}
	out := make(Keys, 0, len(multi))
	for _, m := range multi {
		parts[multiIdx] = m
		out = append(out, key.NewCompositeKey(parts...))
	}
	return out, nil
}

// CreateValue 参数可以少于字段数，用于前缀范围查询
func (c *Composite) CreateValue(params ...any) (any, error) {
	if len(params) == 1 {
		if ck, ok := params[0].(*key.CompositeKey); ok {
			params = ck.Keys()
		}
	}
	if len(params) > len(c.Definitions) {
		return nil, errors.Wrapf(ErrParamCount, "expected at most %d, got %d", len(c.Definitions), len(params))
	}
	out := key.NewCompositeKey()
	for i, p := range params {
		if key.IsSentinel(p) {
			out.AddKey(p)
			continue
		}
		v, err := c.Definitions[i].CreateValue(p)
		if err != nil {
			return nil, err
		}
		out.AddKey(v)
	}
	return out, nil
}

func (c *Composite) Document() map[string]any {
	defs := make([]any, 0, len(c.Definitions))
	for _, d := range c.Definitions {
		defs = append(defs, d.Document())
	}
	return map[string]any{
		"kind":              KindComposite,
		"class":             c.Class,
		"nullValuesIgnored": c.IgnoreNulls,
		"definitions":       defs,
	}
}
