package engine

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedValue struct {
	value []byte
	found bool
}

// Cached 给引擎加一个 LRU 读缓存，事务结束时清空
type Cached struct {
	Engine
	cache *lru.Cache[string, cachedValue]
}

func NewCached(e Engine, size int) (*Cached, error) {
	c, err := lru.New[string, cachedValue](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Engine: e, cache: c}, nil
}

func (c *Cached) Unwrap() Engine { return c.Engine }

// Len 缓存里的条目数
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(k any) (string, bool) {
	b, err := EncodeKey(k)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (c *Cached) Get(k any) ([]byte, bool, error) {
	ck, ok := cacheKey(k)
	if ok {
		if v, hit := c.cache.Get(ck); hit {
			return v.value, v.found, nil
		}
	}
	v, found, err := c.Engine.Get(k)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.cache.Add(ck, cachedValue{value: v, found: found})
	}
	return v, found, nil
}

func (c *Cached) Contains(k any) (bool, error) {
	_, ok, err := c.Get(k)
	return ok, err
}

func (c *Cached) Put(k any, value []byte) error {
	c.invalidate(k)
	return c.Engine.Put(k, value)
}

func (c *Cached) Remove(k any) (bool, error) {
	c.invalidate(k)
	return c.Engine.Remove(k)
}

func (c *Cached) invalidate(k any) {
	if ck, ok := cacheKey(k); ok {
		c.cache.Remove(ck)
	}
}

func (c *Cached) Clear() error {
	c.cache.Purge()
	return c.Engine.Clear()
}

func (c *Cached) Create(ctx context.Context) error {
	c.cache.Purge()
	return c.Engine.Create(ctx)
}

func (c *Cached) Load(ctx context.Context) error {
	c.cache.Purge()
	return c.Engine.Load(ctx)
}

func (c *Cached) Delete(ctx context.Context) error {
	c.cache.Purge()
	return c.Engine.Delete(ctx)
}

func (c *Cached) AfterTxCommit() {
	c.cache.Purge()
	c.Engine.AfterTxCommit()
}

func (c *Cached) AfterTxRollback() {
	c.cache.Purge()
	c.Engine.AfterTxRollback()
}
