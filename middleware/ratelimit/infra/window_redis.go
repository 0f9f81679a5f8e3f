package infra

import (
	"context"
	"strconv"
	"time"

	"service-guard/middleware/ratelimit/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Scores das janelas são timestamps Unix em milissegundos. O membro é
// "<janelaMs>:<id>": cada entrada guarda a janela com que foi admitida.
//
// Todo script faz o purge antes de contar. Uma entrada só sai quando
// score <= now-max(janela do pedido, janela da entrada); assim a limpeza
// com a janela padrão nunca corta entradas admitidas com janela maior.
//
// ARGV comum: now (ms), window (ms), cutoff (now-window, inteiro), since
// ("(" + cutoff, limite exclusivo para contar).
const purgeFn = `
local function purge(key, now, cutoff)
  local removed = 0
  local stale = redis.call('ZRANGEBYSCORE', key, '-inf', cutoff, 'WITHSCORES')
  for i = 1, #stale, 2 do
    local member = stale[i]
    local own = tonumber(string.match(member, '^(%d+):')) or 0
    if tonumber(stale[i + 1]) <= now - own then
      redis.call('ZREM', key, member)
      removed = removed + 1
    end
  end
  return removed
end

local function oldest(key, since)
  local first = redis.call('ZRANGEBYSCORE', key, since, '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
  if #first > 0 then
    return tonumber(first[2])
  end
  return -1
end
`

// admitScript: purge, count, oldest e, se houver vaga, ZADD + EXPIRE.
// O EXPIRE nunca reduz um TTL maior já definido.
// Retorna {admitted, count, oldestMillis|-1}.
var admitScript = redis.NewScript(purgeFn + `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[5])
local member = ARGV[6]
local ttl = tonumber(ARGV[7])

purge(key, now, ARGV[3])
local count = redis.call('ZCOUNT', key, ARGV[4], '+inf')
local first = oldest(key, ARGV[4])

if count >= limit then
  return {0, count, first}
end

redis.call('ZADD', key, now, member)
if redis.call('TTL', key) < ttl then
  redis.call('EXPIRE', key, ttl)
end
return {1, count, first}
`)

// inspectScript: purge, count e oldest. Não insere.
var inspectScript = redis.NewScript(purgeFn + `
local key = KEYS[1]
local now = tonumber(ARGV[1])

purge(key, now, ARGV[3])
return {redis.call('ZCOUNT', key, ARGV[4], '+inf'), oldest(key, ARGV[4])}
`)

// purgeScript: purge e remove a chave se ela ficar vazia.
// Retorna {removed, deleted}.
var purgeScript = redis.NewScript(purgeFn + `
local key = KEYS[1]
local now = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
  return {0, 0}
end
local removed = purge(key, now, ARGV[3])
if redis.call('ZCARD', key) == 0 then
  redis.call('DEL', key)
  return {removed, 1}
end
return {removed, 0}
`)

// windowArgs monta o ARGV comum dos scripts.
func windowArgs(now time.Time, window time.Duration, extra ...any) []any {
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	args := []any{now.UnixMilli(), window.Milliseconds(), cutoff, "(" + cutoff}
	return append(args, extra...)
}

// memberFor prefixa o id com a janela da admissão.
func memberFor(window time.Duration, id string) string {
	return strconv.FormatInt(window.Milliseconds(), 10) + ":" + id
}

// RedisWindowStore implementa domain.WindowStore sobre sorted sets do Redis.
type RedisWindowStore struct {
	rdb      redis.UniversalClient
	scanSize int64
}

type RedisWindowOption func(*RedisWindowStore)

// WithScanCount ajusta o COUNT usado nas varreduras SCAN.
func WithScanCount(n int64) RedisWindowOption {
	return func(s *RedisWindowStore) {
		if n > 0 {
			s.scanSize = n
		}
	}
}

func NewRedisWindowStore(rdb redis.UniversalClient, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:      rdb,
		scanSize: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Admit(ctx context.Context, key string, now time.Time, lim domain.Limit, member string) (domain.WindowResult, error) {
	ttl := int64((lim.Window + domain.ExpiryGrace) / time.Second)
	vals, err := admitScript.Run(ctx, s.rdb, []string{key},
		windowArgs(now, lim.Window, lim.Requests, memberFor(lim.Window, member), ttl)...,
	).Int64Slice()
	if err != nil {
		return domain.WindowResult{}, storeErr(err, "admit script")
	}
	if len(vals) != 3 {
		return domain.WindowResult{}, storeErr(errors.Errorf("unexpected reply length %d", len(vals)), "admit script")
	}
	return domain.WindowResult{
		Admitted: vals[0] == 1,
		Count:    int(vals[1]),
		Oldest:   fromMillis(vals[2]),
	}, nil
}

func (s *RedisWindowStore) Inspect(ctx context.Context, key string, now time.Time, window time.Duration) (domain.WindowState, error) {
	vals, err := inspectScript.Run(ctx, s.rdb, []string{key}, windowArgs(now, window)...).Int64Slice()
	if err != nil {
		return domain.WindowState{}, storeErr(err, "inspect script")
	}
	if len(vals) != 2 {
		return domain.WindowState{}, storeErr(errors.Errorf("unexpected reply length %d", len(vals)), "inspect script")
	}
	return domain.WindowState{Count: int(vals[0]), Oldest: fromMillis(vals[1])}, nil
}

// Count conta as entradas vivas sem remover nada (ZCOUNT em (now-window, +inf]).
func (s *RedisWindowStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	since := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	n, err := s.rdb.ZCount(ctx, key, since, "+inf").Result()
	if err != nil {
		return 0, storeErr(err, "zcount")
	}
	return int(n), nil
}

func (s *RedisWindowStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, storeErr(err, "del")
	}
	return n > 0, nil
}

func (s *RedisWindowStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, s.scanSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storeErr(err, "scan "+pattern)
	}
	return keys, nil
}

func (s *RedisWindowStore) Purge(ctx context.Context, key string, now time.Time, window time.Duration) (domain.PurgeResult, error) {
	vals, err := purgeScript.Run(ctx, s.rdb, []string{key}, windowArgs(now, window)...).Int64Slice()
	if err != nil {
		return domain.PurgeResult{}, storeErr(err, "purge script")
	}
	if len(vals) != 2 {
		return domain.PurgeResult{}, storeErr(errors.Errorf("unexpected reply length %d", len(vals)), "purge script")
	}
	return domain.PurgeResult{Removed: int(vals[0]), Deleted: vals[1] == 1}, nil
}

func fromMillis(ms int64) time.Time {
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// storeErr marca o erro como indisponibilidade do store, preservando a causa.
func storeErr(err error, op string) error {
	return errors.WithMessage(&unavailableError{cause: err}, op)
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return domain.ErrStoreUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool { return target == domain.ErrStoreUnavailable }

func (e *unavailableError) Unwrap() error { return e.cause }
