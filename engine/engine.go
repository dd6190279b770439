package engine

import (
	"context"

	"github.com/Hain2000/docindex/key"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrUnknownAlgorithm       = errors.New("unknown index engine algorithm")
	ErrEngineClosed           = errors.New("index engine is not open")
	ErrEngineNotFound         = errors.New("index engine data not found")
	ErrUnsupportedKey         = errors.New("key type is not supported by the key codec")
	ErrInvalidKeyEncoding     = errors.New("invalid encoded key")
	ErrCheckpointNotSupported = errors.New("index engine does not support checkpoints")
)

// Engine 只负责有序的键值存储，索引语义（唯一、集合）在上层实现
type Engine interface {
	Name() string
	Algorithm() string
	// Locator 标识底层存储的位置
	Locator() string

	Create(ctx context.Context) error
	Load(ctx context.Context) error
	Delete(ctx context.Context) error
	Flush() error
	Close() error

	Get(k any) ([]byte, bool, error)
	Put(k any, value []byte) error
	Remove(k any) (bool, error)
	Contains(k any) (bool, error)
	Clear() error
	Size() (int64, error)

	Iterator(opts IteratorOptions) (Iterator, error)
	Range(b Bounds, opts IteratorOptions) (Iterator, error)

	// 事务边界的回调
	BeforeTxBegin()
	AfterTxCommit()
	AfterTxRollback()
}

// Iterator 引擎迭代器
type Iterator interface {
	Rewind()      // 回到起点
	Seek(k any)   // 正向找到第一个 >= k 的位置，反向找到第一个 <= k 的位置
	Next()        // 下一个 key
	Valid() bool  // 是否已经遍历完了所有的 key
	Key() any     // 当前遍历的 key
	Value() []byte
	Err() error
	Close()
}

// IteratorOptions 迭代器配置项
type IteratorOptions struct {
	Reverse bool // 是否反向遍历
	Limit   int  // 最多返回多少个 key，<= 0 不限制
}

// BulkLoader 引擎支持批量导入时实现，重建索引期间会用到
type BulkLoader interface {
	BeginBulkLoad()
	EndBulkLoad() error
}

// Checkpointer 能把当前数据做一个一致的拷贝
type Checkpointer interface {
	Checkpoint(dir string) error
}

// Options 引擎配置项
type Options struct {
	Algorithm  string
	Name       string
	DirPath    string // 持久化引擎的数据目录
	CacheSize  int    // 读缓存大小，0 表示不开启
	SyncWrites bool   // 每次写是否需要持久化
	InMemory   bool
	Logger     hclog.Logger
}

// Bounds 范围查询的边界，没有设置的一侧不受限制
type Bounds struct {
	From          any
	FromInclusive bool
	HasFrom       bool
	To            any
	ToInclusive   bool
	HasTo         bool
}

func Between(from any, fromInclusive bool, to any, toInclusive bool) Bounds {
	return Bounds{From: from, FromInclusive: fromInclusive, HasFrom: true, To: to, ToInclusive: toInclusive, HasTo: true}
}

// Major 大于(等于) from 的键
func Major(from any, inclusive bool) Bounds {
	return Bounds{From: from, FromInclusive: inclusive, HasFrom: true}
}

// Minor 小于(等于) to 的键
func Minor(to any, inclusive bool) Bounds {
	return Bounds{To: to, ToInclusive: inclusive, HasTo: true}
}

func (b Bounds) afterStart(k any) bool {
	if !b.HasFrom {
		return true
	}
	c := key.Compare(k, b.From)
	return c > 0 || (c == 0 && b.FromInclusive)
}

func (b Bounds) beforeEnd(k any) bool {
	if !b.HasTo {
		return true
	}
	c := key.Compare(k, b.To)
	return c < 0 || (c == 0 && b.ToInclusive)
}

// Contains 判断 k 是否在范围内
func (b Bounds) Contains(k any) bool {
	return b.afterStart(k) && b.beforeEnd(k)
}

// Unwrap 去掉缓存之类的包装，返回真正的引擎
func Unwrap(e Engine) Engine {
	for {
		u, ok := e.(interface{ Unwrap() Engine })
		if !ok {
			return e
		}
		e = u.Unwrap()
	}
}

func AsBulkLoader(e Engine) (BulkLoader, bool) {
	b, ok := Unwrap(e).(BulkLoader)
	return b, ok
}

func AsCheckpointer(e Engine) (Checkpointer, bool) {
	c, ok := Unwrap(e).(Checkpointer)
	return c, ok
}
