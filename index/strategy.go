package index

import (
	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/tx"
)

// valueStrategy 不同索引类型对值的处理方式
type valueStrategy interface {
	container() data.ContainerType
	// single 一个键只保存一个值
	single() bool
	// writeKeys 写入和删除时一个键对应的引擎键，全文索引会拆词
	writeKeys(k any) []any
	// readKey 查询时使用的引擎键
	readKey(k any) any
	// put 调用方持有索引的写锁，changes 只在提交事务时不为 nil
	put(ix *Index, k any, v data.RID, changes *tx.IndexChanges) error
	// remove v 为 data.NullRID 时删除整个键
	remove(ix *Index, k any, v data.RID) (bool, error)
}

func newStrategy(typ Type, metadata map[string]string) valueStrategy {
	switch typ {
	case Unique:
		return uniqueValues{check: true}
	case Dictionary:
		return uniqueValues{check: false}
	case FullText:
		return fullTextValues{tokenizer: NewTokenizer(metadata)}
	}
	return multiValues{}
}

// uniqueValues 唯一索引和字典，字典不检查重复，后写的覆盖
type uniqueValues struct {
	check bool
}

func (uniqueValues) container() data.ContainerType { return data.ContainerSingle }
func (uniqueValues) single() bool                  { return true }
func (uniqueValues) writeKeys(k any) []any         { return []any{k} }
func (uniqueValues) readKey(k any) any             { return k }

func (s uniqueValues) put(ix *Index, k any, v data.RID, changes *tx.IndexChanges) error {
	cur, err := ix.read(k)
	if err != nil {
		return err
	}
	if len(cur) > 0 {
		if cur[0] == v {
			return nil
		}
		// 同一个事务里已经删掉的旧值不算重复
		if s.check && (changes == nil || changes.KeyState(k, cur[0]) != tx.RemovedInTx) {
			ix.metrics.duplicate(ix.name)
			return &DuplicateKeyError{Index: ix.name, Key: k, Existing: cur[0], Value: v}
		}
	}
	return ix.write(k, []data.RID{v})
}

func (uniqueValues) remove(ix *Index, k any, v data.RID) (bool, error) {
	cur, err := ix.read(k)
	if err != nil || len(cur) == 0 {
		return false, err
	}
	if !v.IsNull() && cur[0] != v {
		return false, nil
	}
	return ix.engine.Remove(k)
}

// multiValues 非唯一索引，值是有序的 RID 集合
type multiValues struct{}

func (multiValues) container() data.ContainerType { return data.ContainerSet }
func (multiValues) single() bool                  { return false }
func (multiValues) writeKeys(k any) []any         { return []any{k} }
func (multiValues) readKey(k any) any             { return k }

func (multiValues) put(ix *Index, k any, v data.RID, _ *tx.IndexChanges) error {
	cur, err := ix.read(k)
	if err != nil {
		return err
	}
	cur, added := data.AddRID(cur, v)
	if !added {
		return nil
	}
	return ix.write(k, cur)
}

func (multiValues) remove(ix *Index, k any, v data.RID) (bool, error) {
	if v.IsNull() {
		return ix.engine.Remove(k)
	}
	cur, err := ix.read(k)
	if err != nil {
		return false, err
	}
	cur, ok := data.RemoveRID(cur, v)
	if !ok {
		return false, nil
	}
	return true, ix.write(k, cur)
}

// fullTextValues 每个词一个键，值和非唯一索引一样是集合
type fullTextValues struct {
	multiValues
	tokenizer *Tokenizer
}

func (s fullTextValues) writeKeys(k any) []any {
	tokens := s.tokenizer.Tokens(k)
	out := make([]any, len(tokens))
	for i, t := range tokens {
		out[i] = t
	}
	return out
}

func (s fullTextValues) readKey(k any) any {
	if w, ok := k.(string); ok {
		return s.tokenizer.Normalize(w)
	}
	return k
}
