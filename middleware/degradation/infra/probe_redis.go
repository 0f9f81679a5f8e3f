package infra

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisProbe implementa domain.ConnectionTester com PING.
type RedisProbe struct {
	rdb redis.UniversalClient
}

func NewRedisProbe(rdb redis.UniversalClient) *RedisProbe {
	return &RedisProbe{rdb: rdb}
}

func (p *RedisProbe) TestConnection(ctx context.Context) (bool, error) {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return false, errors.WithMessage(err, "redis ping")
	}
	return true, nil
}
