package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cache keeps recently finished block numbers in memory so redelivered
// messages for terminal blocks can be discarded without a store read.
type Cache interface {
	Get(blockNumber uint64) (interface{}, bool)
	Set(blockNumber uint64, value interface{})
}

const DefaultCacheSize = 4096

type LocalCache struct {
	*lru.Cache
}

func NewLocalCache(size uint64) (Cache, error) {
	cache, err := lru.New(int(size))
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache,
	}, nil
}

func (c *LocalCache) Get(blockNumber uint64) (interface{}, bool) {
	return c.Cache.Get(blockNumber)
}

func (c *LocalCache) Set(blockNumber uint64, value interface{}) {
	c.Cache.Add(blockNumber, value)
}
