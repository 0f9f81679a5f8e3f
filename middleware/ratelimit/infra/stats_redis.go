package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"service-guard/middleware/ratelimit/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por identidade.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackIdentities bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackIdentities(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackIdentities = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "rate_limit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record grava contadores em hashes:
//
//	{prefix}:total                 campos allowed|denied|fail_open
//	{prefix}:type                  campos {tipo}:{campo}
//	{prefix}:minute:YYYYMMDDhhmm   campos allowed|denied|fail_open (com TTL)
//	{prefix}:identity:{id}         campos allowed|denied|fail_open (com TTL, opcional)
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	totalKey := s.prefix + ":total"
	pipe.HIncrBy(ctx, totalKey, field, 1)
	if ev.FailOpen {
		pipe.HIncrBy(ctx, totalKey, "fail_open", 1)
	}

	if ev.LimitType != "" {
		pipe.HIncrBy(ctx, s.prefix+":type", string(ev.LimitType)+":"+field, 1)
	}

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if s.trackIdentities {
		id := strings.TrimSpace(ev.Identity)
		if id != "" {
			idKey := s.prefix + ":identity:" + id
			pipe.HIncrBy(ctx, idKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, idKey, s.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WithMessage(err, "stats pipeline")
	}
	return nil
}
