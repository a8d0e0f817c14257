package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangeCache remembers a hash of each record's last committed payload so
// unchanged CRM records can skip their upsert. Backed by Redis when a URL is
// configured (shared across processes), otherwise by an in-process map. A
// cache miss or backend error is always answered "changed" — correctness
// never depends on the cache.
type ChangeCache struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	local map[string]string
}

// NewChangeCache builds a cache from a Redis URL. An empty URL or a URL that
// fails to parse yields the in-process fallback.
func NewChangeCache(redisURL string) *ChangeCache {
	cache := &ChangeCache{
		ttl:   24 * time.Hour,
		local: make(map[string]string),
	}
	if redisURL == "" {
		return cache
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️ Invalid REDIS_URL, falling back to in-process change cache: %v", err)
		return cache
	}
	cache.rdb = redis.NewClient(opts)
	return cache
}

// Changed reports whether the record differs from its last committed
// payload. It never stores anything: callers Remember the record only after
// its upsert commits, so a failed write stays "changed" and is retried on
// the next pull.
func (c *ChangeCache) Changed(ctx context.Context, companyID int64, entity EntityType, recordID string, payload any) bool {
	hash, key, ok := fingerprint(companyID, entity, recordID, payload)
	if !ok {
		return true
	}

	if c.rdb != nil {
		prev, err := c.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return true
		}
		if err != nil {
			log.Printf("⚠️ Change cache read failed for %s: %v", key, err)
			return true
		}
		return prev != hash
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local[key] != hash
}

// Remember records the payload's hash after a successful upsert.
func (c *ChangeCache) Remember(ctx context.Context, companyID int64, entity EntityType, recordID string, payload any) {
	hash, key, ok := fingerprint(companyID, entity, recordID, payload)
	if !ok {
		return
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, hash, c.ttl).Err(); err != nil {
			log.Printf("⚠️ Change cache write failed for %s: %v", key, err)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = hash
}

func fingerprint(companyID int64, entity EntityType, recordID string, payload any) (hash, key string, ok bool) {
	raw, err := json.Marshal(payload) // map keys marshal sorted, so the hash is stable
	if err != nil {
		return "", "", false
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:]), fmt.Sprintf("sync:%d:%s:%s", companyID, entity, recordID), true
}
