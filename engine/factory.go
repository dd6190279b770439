package engine

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

const (
	BTreeAlgorithm = "BTREE"
	Pebble         = "PEBBLE"
	LevelDB        = "LEVELDB"
	Badger         = "BADGER"
)

// Factory 根据配置创建引擎
type Factory func(opts Options) (Engine, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		BTreeAlgorithm: func(opts Options) (Engine, error) { return NewBTree(opts), nil },
		Pebble:         func(opts Options) (Engine, error) { return NewPebble(opts), nil },
		LevelDB:        func(opts Options) (Engine, error) { return NewLevelDB(opts), nil },
		Badger:         func(opts Options) (Engine, error) { return NewBadger(opts), nil },
	}
)

// Register 注册一个新的算法，同名覆盖
func Register(algorithm string, f Factory) {
	factoriesMu.Lock()
	factories[strings.ToUpper(algorithm)] = f
	factoriesMu.Unlock()
}

// New 创建引擎，CacheSize > 0 时包一层读缓存
func New(opts Options) (Engine, error) {
	opts.Algorithm = strings.ToUpper(opts.Algorithm)
	factoriesMu.RLock()
	f, ok := factories[opts.Algorithm]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q", opts.Algorithm)
	}
	e, err := f(opts)
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		c, err := NewCached(e, opts.CacheSize)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return e, nil
}

// Algorithms 已注册的算法
func Algorithms() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
