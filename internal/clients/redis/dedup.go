package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

// DedupStore is a shared processed-message set backed by Redis SET NX, so
// webhook and polling ingestion can run in separate processes and still agree
// on who answers a message. Keys expire after the TTL; that is fine because
// the platforms never re-deliver messages older than that.
type DedupStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewDedupStore connects using REDIS_ADDR. Callers treat a nil store as
// "capability off" and rely on the in-process set alone.
func NewDedupStore(log *logger.Logger) (*DedupStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttl := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("REDIS_DEDUP_TTL_HOURS")); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil && hours > 0 {
			ttl = time.Duration(hours) * time.Hour
		}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &DedupStore{
		log: log.With("service", "RedisDedupStore"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

// TestAndInsert returns true exactly once per key across every process
// sharing this Redis.
func (s *DedupStore) TestAndInsert(ctx context.Context, key string) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, fmt.Errorf("redis dedup store not initialized")
	}
	ok, err := s.rdb.SetNX(ctx, "dedup:"+key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *DedupStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
