package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// redisKV is the subset of redis.Cmdable the cache uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// SpecCache stores normalized availability specs in Redis, keyed by a
// BLAKE2b-256 digest of the whitespace-normalized source text.
type SpecCache struct {
	rdb    redisKV
	ttl    time.Duration
	prefix string
}

func NewSpecCache(rdb redisKV, ttl time.Duration, prefix string) *SpecCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "normalize"
	}
	return &SpecCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

// Key is stable across runs and ignores runs of whitespace.
func Key(prefix, text string) string {
	sum := blake2b.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *SpecCache) Get(ctx context.Context, text string) (model.AvailabilitySpec, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(c.prefix, text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.AvailabilitySpec{}, false, nil
	}
	if err != nil {
		return model.AvailabilitySpec{}, false, err
	}
	var spec model.AvailabilitySpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		// Treat unreadable entries as misses; the next Put overwrites them.
		return model.AvailabilitySpec{}, false, nil
	}
	return spec, true, nil
}

func (c *SpecCache) Put(ctx context.Context, text string, spec model.AvailabilitySpec) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, Key(c.prefix, text), raw, c.ttl).Err()
}
