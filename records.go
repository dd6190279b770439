package docindex

import (
	"context"
	"slices"
	"sync"

	"github.com/Hain2000/docindex/data"
	"github.com/Hain2000/docindex/definition"
)

// MemoryRecords 内存中的记录存储，可以作为重建索引的记录来源和删除时的版本检查
type MemoryRecords struct {
	lock     *sync.RWMutex
	clusters map[string]int32
	next     map[int32]int64
	records  map[data.RID]*definition.Document
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		lock:     new(sync.RWMutex),
		clusters: make(map[string]int32),
		next:     make(map[int32]int64),
		records:  make(map[data.RID]*definition.Document),
	}
}

func (s *MemoryRecords) clusterID(name string) int32 {
	id, ok := s.clusters[name]
	if !ok {
		id = int32(len(s.clusters))
		s.clusters[name] = id
	}
	return id
}

// Save 保存记录的拷贝，没有持久 RID 的记录会分配一个，每次保存版本加一
func (s *MemoryRecords) Save(doc *definition.Document) data.RID {
	s.lock.Lock()
	defer s.lock.Unlock()

	rid := doc.Identity()
	if !rid.IsPersistent() {
		id := s.clusterID(doc.Cluster())
		rid = data.NewRID(id, s.next[id])
		s.next[id]++
		doc.SetIdentity(rid)
	}
	var version int64
	if old, ok := s.records[rid]; ok {
		version = old.Version()
	}
	doc.SetVersion(version + 1)
	s.records[rid] = doc.Copy()
	return rid
}

// Load 返回记录的拷贝
func (s *MemoryRecords) Load(rid data.RID) (*definition.Document, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	doc, ok := s.records[rid]
	if !ok {
		return nil, false
	}
	return doc.Copy(), true
}

func (s *MemoryRecords) Delete(rid data.RID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.records[rid]
	delete(s.records, rid)
	return ok
}

func (s *MemoryRecords) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.records)
}

// Scan 按 RID 顺序遍历簇里的记录
func (s *MemoryRecords) Scan(ctx context.Context, cluster string, fn func(r definition.Record) error) error {
	s.lock.RLock()
	var docs []*definition.Document
	for _, doc := range s.records {
		if doc.Cluster() == cluster {
			docs = append(docs, doc.Copy())
		}
	}
	s.lock.RUnlock()

	slices.SortFunc(docs, func(a, b *definition.Document) int {
		return a.Identity().CompareTo(b.Identity())
	})
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryRecords) CurrentVersion(_ context.Context, rid data.RID) (int64, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	doc, ok := s.records[rid]
	if !ok {
		return 0, false, nil
	}
	return doc.Version(), true, nil
}

// PendingRecord 还没有保存的记录，第一次写索引时才保存
type PendingRecord struct {
	*definition.Document
	store *MemoryRecords
}

// Pending 包装一个新记录，写进索引之前会先保存到 s
func (s *MemoryRecords) Pending(doc *definition.Document) *PendingRecord {
	return &PendingRecord{Document: doc, store: s}
}

func (p *PendingRecord) Persist(_ context.Context) (data.RID, error) {
	return p.store.Save(p.Document), nil
}
