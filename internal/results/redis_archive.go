package results

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlResult   = 24 * time.Hour
	recentLimit = 100
)

// RedisArchive keeps each result as JSON under relay:result:<id> and a capped list of recent ids.
type RedisArchive struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisArchive(rdb *redis.Client) *RedisArchive {
	return &RedisArchive{rdb: rdb, ttl: ttlResult}
}

// OpenRedisArchive connects to redisURL and pings it.
func OpenRedisArchive(ctx context.Context, redisURL string) (*RedisArchive, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisArchive(rdb), nil
}

func (a *RedisArchive) Name() string { return "redis" }

func (a *RedisArchive) Close() error {
	if a == nil || a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}

func keyResult(id string) string { return "relay:result:" + strings.TrimSpace(id) }
func keyRecent() string          { return "relay:results:recent" }

func (a *RedisArchive) Record(ctx context.Context, r Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := a.rdb.TxPipeline()
	pipe.Set(ctx, keyResult(r.SessionID), raw, a.ttl)
	pipe.LRem(ctx, keyRecent(), 0, r.SessionID)
	pipe.LPush(ctx, keyRecent(), r.SessionID)
	pipe.LTrim(ctx, keyRecent(), 0, recentLimit-1)
	pipe.Expire(ctx, keyRecent(), a.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil, nil when the result is unknown or expired.
func (a *RedisArchive) Load(ctx context.Context, id string) (*Result, error) {
	raw, err := a.rdb.Get(ctx, keyResult(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Recent returns up to n results, newest first. Expired entries are skipped.
func (a *RedisArchive) Recent(ctx context.Context, n int) ([]Result, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	ids, err := a.rdb.LRange(ctx, keyRecent(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		r, err := a.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
