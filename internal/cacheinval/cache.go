package cacheinval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TagCache is a Redis-backed cache whose entries are indexed by tag. Each
// tag is a Redis set listing the keys stored under it.
type TagCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewTagCache wraps rdb. Keys and tag sets are namespaced under prefix.
func NewTagCache(rdb redis.UniversalClient, prefix string) *TagCache {
	return &TagCache{rdb: rdb, prefix: prefix}
}

func (c *TagCache) key(k string) string { return c.prefix + "entry:" + k }

func (c *TagCache) tagKey(t string) string { return c.prefix + "tag:" + t }

// Put stores value under key for ttl and indexes it under tags.
func (c *TagCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, c.key(key), value, ttl)
		for _, t := range tags {
			p.SAdd(ctx, c.tagKey(t), c.key(key))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key and whether it was found.
func (c *TagCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return b, true, nil
}

// InvalidateTags drops every entry indexed under one of tags, and the tag
// sets themselves. It returns the number of entries removed.
func (c *TagCache) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	members := make([]*redis.StringSliceCmd, len(tags))
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, t := range tags {
			members[i] = p.SMembers(ctx, c.tagKey(t))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read tag sets: %w", err)
	}
	seen := make(map[string]bool)
	var keys []string
	for _, cmd := range members {
		for _, k := range cmd.Val() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	del := make([]string, 0, len(keys)+len(tags))
	del = append(del, keys...)
	for _, t := range tags {
		del = append(del, c.tagKey(t))
	}
	if err := c.rdb.Del(ctx, del...).Err(); err != nil {
		return 0, fmt.Errorf("delete tagged entries: %w", err)
	}
	return len(keys), nil
}
