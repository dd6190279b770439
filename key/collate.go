package key

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

var ErrUnknownCollate = errors.New("unknown collate")

// Collate 在键进入引擎或事务日志之前对其做变换
type Collate interface {
	Name() string
	Transform(v any) any
}

type defaultCollate struct{}

func (defaultCollate) Name() string        { return "default" }
func (defaultCollate) Transform(v any) any { return v }

type caseInsensitiveCollate struct{}

func (caseInsensitiveCollate) Name() string { return "ci" }

func (c caseInsensitiveCollate) Transform(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	case *CompositeKey:
		out := &CompositeKey{keys: make([]any, 0, len(t.keys))}
		for _, k := range t.keys {
			out.keys = append(out.keys, c.Transform(k))
		}
		return out
	}
	return v
}

// CompositeCollate 对组合键的每个字段分别做变换
type CompositeCollate struct {
	collates []Collate
}

func NewCompositeCollate(collates ...Collate) *CompositeCollate {
	return &CompositeCollate{collates: collates}
}

func (c *CompositeCollate) Name() string { return "composite" }

func (c *CompositeCollate) Collates() []Collate { return c.collates }

func (c *CompositeCollate) Transform(v any) any {
	ck, ok := v.(*CompositeKey)
	if !ok {
		if len(c.collates) > 0 {
			return c.collates[0].Transform(v)
		}
		return v
	}
	out := &CompositeKey{keys: make([]any, 0, len(ck.keys))}
	for i, k := range ck.keys {
		if i < len(c.collates) {
			k = c.collates[i].Transform(k)
		}
		out.keys = append(out.keys, k)
	}
	return out
}

var (
	DefaultCollate         Collate = defaultCollate{}
	CaseInsensitiveCollate Collate = caseInsensitiveCollate{}

	collatesMu sync.RWMutex
	collates   = map[string]Collate{
		DefaultCollate.Name():         DefaultCollate,
		CaseInsensitiveCollate.Name(): CaseInsensitiveCollate,
	}
)

// RegisterCollate 注册自定义的 collate，同名会覆盖
func RegisterCollate(c Collate) {
	collatesMu.Lock()
	collates[strings.ToLower(c.Name())] = c
	collatesMu.Unlock()
}

// CollateByName 空名字返回默认 collate
func CollateByName(name string) (Collate, error) {
	if name == "" {
		return DefaultCollate, nil
	}
	collatesMu.RLock()
	defer collatesMu.RUnlock()
	c, ok := collates[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCollate, "%q", name)
	}
	return c, nil
}
