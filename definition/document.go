package definition

import (
	"slices"

	"github.com/Hain2000/docindex/data"
	"golang.org/x/exp/maps"
)

type original struct {
	value  any
	exists bool
}

// Document 内存中的记录实现，记录每个字段修改之前的值
type Document struct {
	rid      data.RID
	class    string
	cluster  string
	version  int64
	fields   map[string]any
	original map[string]original // 被修改字段的旧值
}

func NewDocument(class string, rid data.RID, fields map[string]any) *Document {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Document{
		rid:      rid,
		class:    class,
		fields:   fields,
		original: make(map[string]original),
	}
}

func (d *Document) Identity() data.RID { return d.rid }

func (d *Document) SetIdentity(rid data.RID) { d.rid = rid }

func (d *Document) Class() string { return d.class }

// Cluster 没有单独设置的话簇名和类名相同
func (d *Document) Cluster() string {
	if d.cluster == "" {
		return d.class
	}
	return d.cluster
}

func (d *Document) SetCluster(cluster string) { d.cluster = cluster }

func (d *Document) Version() int64 { return d.version }

func (d *Document) SetVersion(v int64) { d.version = v }

func (d *Document) Field(name string) (any, bool) {
	v, ok := d.fields[name]
	return v, ok
}

func (d *Document) OriginalField(name string) (any, bool) {
	if o, ok := d.original[name]; ok {
		return o.value, o.exists
	}
	return d.Field(name)
}

func (d *Document) Set(name string, v any) {
	d.remember(name)
	d.fields[name] = v
}

func (d *Document) Unset(name string) {
	d.remember(name)
	delete(d.fields, name)
}

func (d *Document) remember(name string) {
	if _, ok := d.original[name]; ok {
		return
	}
	v, exists := d.fields[name]
	d.original[name] = original{value: v, exists: exists}
}

func (d *Document) DirtyFields() []string {
	names := maps.Keys(d.original)
	slices.Sort(names)
	return names
}

// ClearDirty 保存之后调用，旧值不再保留
func (d *Document) ClearDirty() {
	clear(d.original)
}

// Copy 复制字段和身份，不复制修改记录
func (d *Document) Copy() *Document {
	return &Document{
		rid:      d.rid,
		class:    d.class,
		cluster:  d.cluster,
		version:  d.version,
		fields:   maps.Clone(d.fields),
		original: make(map[string]original),
	}
}
