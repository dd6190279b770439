package index

import (
	"context"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/definition"
	"github.com/Hain2000/docindex/engine"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Descriptor 索引的持久化配置，每次调用 Index.Descriptor 重新生成
type Descriptor struct {
	Name           string
	Type           Type
	Algorithm      string
	ValueContainer string
	Definition     definition.Definition
	Clusters       []string
	Locator        string
	Collate        string
	Metadata       map[string]string
	Version        int64
}

func (ix *Index) Descriptor() Descriptor {
	return Descriptor{
		Name:           ix.name,
		Type:           ix.typ,
		Algorithm:      ix.engine.Algorithm(),
		ValueContainer: data.ContainerName(ix.strategy.container()),
		Definition:     ix.Definition(),
		Clusters:       ix.Clusters(),
		Locator:        ix.engine.Locator(),
		Collate:        ix.collate.Name(),
		Metadata:       ix.Metadata(),
		Version:        ix.version.Load(),
	}
}

// Document 转换成文档，可以交给 structpb 编码
func (d Descriptor) Document() map[string]any {
	clusters := make([]any, len(d.Clusters))
	for i, c := range d.Clusters {
		clusters[i] = c
	}
	meta := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		meta[k] = v
	}
	doc := map[string]any{
		"name":           d.Name,
		"type":           string(d.Type),
		"algorithm":      d.Algorithm,
		"valueContainer": d.ValueContainer,
		"clusters":       clusters,
		"locator":        d.Locator,
		"collate":        d.Collate,
		"metadata":       meta,
		"version":        d.Version,
	}
	if d.Definition != nil {
		doc["definition"] = d.Definition.Document()
	}
	return doc
}

func DescriptorFromDocument(doc map[string]any) (Descriptor, error) {
	var d Descriptor
	d.Name, _ = doc["name"].(string)
	typ, _ := doc["type"].(string)
	t, err := ParseType(typ)
	if err != nil {
		return d, err
	}
	d.Type = t
	d.Algorithm, _ = doc["algorithm"].(string)
	d.ValueContainer, _ = doc["valueContainer"].(string)
	d.Locator, _ = doc["locator"].(string)
	d.Collate, _ = doc["collate"].(string)
	switch v := doc["version"].(type) {
	case float64:
		d.Version = int64(v)
	case int64:
		d.Version = v
	}
	if raw, ok := doc["clusters"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				d.Clusters = append(d.Clusters, s)
			}
		}
	}
	d.Metadata = make(map[string]string)
	if raw, ok := doc["metadata"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				d.Metadata[k] = s
			}
		}
	}
	if raw, ok := doc["definition"].(map[string]any); ok {
		def, err := definition.FromDocument(raw)
		if err != nil {
			return d, errors.Wrapf(err, "index %s", d.Name)
		}
		d.Definition = def
	}
	return d, nil
}

// Marshal 编码成 protobuf 的 Struct
func (d Descriptor) Marshal() ([]byte, error) {
	s, err := structpb.NewStruct(d.Document())
	if err != nil {
		return nil, errors.Wrapf(err, "encode descriptor of index %s", d.Name)
	}
	return proto.Marshal(s)
}

func UnmarshalDescriptor(b []byte) (Descriptor, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Descriptor{}, errors.Wrap(ErrLoadFailure, err.Error())
	}
	return DescriptorFromDocument(s.AsMap())
}

// Load 用描述符打开已有的索引
// 数据损坏时自动索引会重建，重建失败返回 false，配置错误返回 error
func (ix *Index) Load(ctx context.Context, desc Descriptor) (bool, error) {
	if err := ix.configure(desc.Name, desc.Type, desc.Definition, desc.Clusters, desc.Collate, desc.Metadata); err != nil {
		return false, err
	}
	ix.version.Store(desc.Version)

	ix.rwLock.Lock()
	err := ix.engine.Load(ctx)
	if err == nil {
		err = ix.verify()
	}
	ix.rwLock.Unlock()
	if err == nil {
		ix.logger.Debug("index loaded", "algorithm", ix.engine.Algorithm())
		return true, nil
	}

	ix.logger.Warn("index data cannot be loaded", "error", err)
	if !ix.Automatic() || ix.source == nil {
		return false, nil
	}
	ix.logger.Info("rebuilding index after load failure")
	if _, rerr := ix.Rebuild(ctx, nil); rerr != nil {
		ix.logger.Error("rebuild after load failure failed", "error", rerr)
		return false, nil
	}
	return true, nil
}

// verify 检查第一个和最后一个值能不能解码
func (ix *Index) verify() error {
	for _, reverse := range []bool{false, true} {
		it, err := ix.engine.Iterator(engine.IteratorOptions{Reverse: reverse, Limit: 1})
		if err != nil {
			return err
		}
		if it.Valid() {
			_ = it.Key()
			if _, _, err := data.DecodeContainer(it.Value()); err != nil {
				it.Close()
				return errors.Wrapf(ErrLoadFailure, "index %s: %v", ix.name, err)
			}
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
