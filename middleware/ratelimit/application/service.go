package application

import (
	"context"
	"math"
	"time"

	"service-guard/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter concentra a regra de admissão por janela deslizante.
//
// Ele não guarda estado de janela: toda a serialização por chave acontece
// na transação do WindowStore. Pode ser usado por várias goroutines.
type RateLimiter struct {
	store        domain.WindowStore
	limits       domain.Limits
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	callTimeout  time.Duration
	cleanupPace  rate.Limit
	cleanupBurst int
}

type Option func(*RateLimiter)

func WithLogger(l *zap.Logger) Option {
	return func(r *RateLimiter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLimits troca a tabela padrão de limites.
func WithLimits(l domain.Limits) Option {
	return func(r *RateLimiter) { r.limits = l }
}

// WithClock injeta o relógio (testes).
func WithClock(now func() time.Time) Option {
	return func(r *RateLimiter) { r.now = now }
}

// WithCallTimeout limita cada chamada ao store. <= 0 desativa o limite.
func WithCallTimeout(d time.Duration) Option {
	return func(r *RateLimiter) { r.callTimeout = d }
}

// WithCleanupRate limita quantas chaves por segundo a limpeza processa.
// keysPerSecond <= 0 desliga o ritmo (sem espera).
func WithCleanupRate(keysPerSecond float64, burst int) Option {
	return func(r *RateLimiter) {
		if keysPerSecond <= 0 {
			r.cleanupPace = rate.Inf
			return
		}
		r.cleanupPace = rate.Limit(keysPerSecond)
		r.cleanupBurst = max(burst, 1)
	}
}

func withIDGenerator(fn func() string) Option {
	return func(r *RateLimiter) { r.newID = fn }
}

func NewRateLimiter(store domain.WindowStore, opts ...Option) *RateLimiter {
	r := &RateLimiter{
		store:        store,
		limits:       domain.DefaultLimits(),
		logger:       zap.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
		callTimeout:  2 * time.Second,
		cleanupPace:  rate.Inf,
		cleanupBurst: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limits devolve a tabela configurada.
func (r *RateLimiter) Limits() domain.Limits { return r.limits }

type checkParams struct {
	limit  *int
	window *time.Duration
}

type CheckOption func(*checkParams)

// WithLimit sobrescreve a quantidade do tipo só nesta chamada.
func WithLimit(n int) CheckOption {
	return func(p *checkParams) { p.limit = &n }
}

// WithWindow sobrescreve a janela do tipo só nesta chamada.
func WithWindow(d time.Duration) CheckOption {
	return func(p *checkParams) { p.window = &d }
}

// resolve aplica os overrides sobre o limite do tipo. O bool é false quando
// não há limite utilizável: tipo fora da tabela sem WithLimit, ou janela <= 0.
func (r *RateLimiter) resolve(t domain.LimitType, opts []CheckOption) (domain.Limit, bool) {
	lim, known := r.limits.Get(t)
	p := checkParams{}
	for _, opt := range opts {
		opt(&p)
	}
	if p.limit != nil {
		lim.Requests = *p.limit
	}
	if p.window != nil {
		lim.Window = *p.window
	}
	return lim, (known || p.limit != nil) && lim.Window > 0
}

// Check decide se a identidade pode consumir uma unidade do tipo agora.
//
// Nunca retorna erro: falha de infraestrutura vira fail-open (ver failOpen)
// e limite sem configuração também (ver unresolvedLimit).
func (r *RateLimiter) Check(ctx context.Context, identity string, t domain.LimitType, opts ...CheckOption) domain.Result {
	lim, ok := r.resolve(t, opts)
	now := r.now()
	if !ok {
		return r.unresolvedLimit(identity, t, lim, now)
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	res, err := r.store.Admit(callCtx, domain.Key(t, identity), now, lim, r.newID())
	if err != nil {
		return r.failOpen(identity, t, lim, now, err)
	}

	resetTime := now.Add(lim.Window)
	if !res.Oldest.IsZero() {
		resetTime = res.Oldest.Add(lim.Window)
	}

	if !res.Admitted {
		return domain.Result{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: retryAfter(resetTime, now),
		}
	}
	return domain.Result{
		Allowed:   true,
		Remaining: max(lim.Requests-res.Count-1, 0),
		ResetTime: resetTime,
	}
}

// failOpen é o único ponto onde a política de disponibilidade é aplicada:
// store fora do ar não pode virar indisponibilidade para tráfego legítimo,
// então a requisição é admitida com visibilidade degradada (Remaining=0).
func (r *RateLimiter) failOpen(identity string, t domain.LimitType, lim domain.Limit, now time.Time, err error) domain.Result {
	r.logger.Warn("rate limit store error, failing open",
		zap.String("identity", identity),
		zap.String("limit_type", string(t)),
		zap.Error(err),
	)
	return domain.Result{
		Allowed:   true,
		Remaining: 0,
		ResetTime: now.Add(lim.Window),
		FailOpen:  true,
	}
}

// unresolvedLimit aplica a política do failOpen para limite sem configuração.
// O store não é consultado e nada é gravado.
func (r *RateLimiter) unresolvedLimit(identity string, t domain.LimitType, lim domain.Limit, now time.Time) domain.Result {
	r.logger.Warn("rate limit not configured for type, failing open",
		zap.String("identity", identity),
		zap.String("limit_type", string(t)),
		zap.Int("requests", lim.Requests),
		zap.Duration("window", lim.Window),
	)
	return domain.Result{
		Allowed:   true,
		Remaining: 0,
		ResetTime: now.Add(max(lim.Window, 0)),
		FailOpen:  true,
	}
}

// retryAfter arredonda para cima em segundos, mínimo 1s.
func retryAfter(resetTime, now time.Time) time.Duration {
	secs := math.Ceil(resetTime.Sub(now).Seconds())
	return time.Duration(max(secs, 1)) * time.Second
}

// Reset apaga as janelas da identidade. Sem tipos, apaga todos.
// O mapa indica se havia chave (false para chave ausente, sem erro).
func (r *RateLimiter) Reset(ctx context.Context, identity string, types ...domain.LimitType) (map[domain.LimitType]bool, error) {
	if len(types) == 0 {
		types = domain.AllLimitTypes()
	}
	out := make(map[domain.LimitType]bool, len(types))
	for _, t := range types {
		callCtx, cancel := r.callContext(ctx)
		deleted, err := r.store.Delete(callCtx, domain.Key(t, identity))
		cancel()
		if err != nil {
			return out, errors.WithMessagef(err, "reset %s", t)
		}
		out[t] = deleted
	}
	return out, nil
}

// Status lê a janela sem consumir (purga expirados, não insere).
// Aceita os mesmos overrides de Check para ler a janela customizada.
func (r *RateLimiter) Status(ctx context.Context, identity string, t domain.LimitType, opts ...CheckOption) (domain.StatusSnapshot, error) {
	lim, ok := r.resolve(t, opts)
	if !ok {
		return domain.StatusSnapshot{}, errors.WithMessagef(domain.ErrUnknownLimitType, "status %s", t)
	}
	now := r.now()

	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	st, err := r.store.Inspect(callCtx, domain.Key(t, identity), now, lim.Window)
	if err != nil {
		return domain.StatusSnapshot{}, errors.WithMessagef(err, "status %s", t)
	}

	resetTime := now.Add(lim.Window)
	if !st.Oldest.IsZero() {
		resetTime = st.Oldest.Add(lim.Window)
	}
	return domain.StatusSnapshot{
		LimitType: t,
		Count:     st.Count,
		Limit:     lim.Requests,
		Remaining: max(lim.Requests-st.Count, 0),
		ResetTime: resetTime,
		IsLimited: st.Count >= lim.Requests,
	}, nil
}

// GlobalStats soma as janelas ativas por tipo. Só observabilidade.
func (r *RateLimiter) GlobalStats(ctx context.Context) (map[domain.LimitType]domain.TypeStats, error) {
	now := r.now()
	out := make(map[domain.LimitType]domain.TypeStats, len(r.limits))
	for _, t := range domain.AllLimitTypes() {
		lim, ok := r.limits.Get(t)
		if !ok {
			continue
		}
		keys, err := r.store.Keys(ctx, domain.KeyPattern(t))
		if err != nil {
			return out, errors.WithMessagef(err, "global stats %s", t)
		}
		st := domain.TypeStats{Limit: lim.Requests, Window: lim.Window}
		for _, key := range keys {
			callCtx, cancel := r.callContext(ctx)
			n, err := r.store.Count(callCtx, key, now, lim.Window)
			cancel()
			if err != nil {
				return out, errors.WithMessagef(err, "global stats %s", key)
			}
			if n > 0 {
				st.ActiveUsers++
				st.TotalRequests += n
			}
		}
		out[t] = st
	}
	return out, nil
}

// Cleanup purga entradas expiradas de todas as chaves e remove as que ficarem vazias.
// Idempotente e seguro em paralelo com Check (cada purge é um script atômico).
func (r *RateLimiter) Cleanup(ctx context.Context) (domain.CleanupStats, error) {
	var total domain.CleanupStats
	pace := rate.NewLimiter(r.cleanupPace, r.cleanupBurst)
	now := r.now()

	for _, t := range domain.AllLimitTypes() {
		lim, ok := r.limits.Get(t)
		if !ok {
			continue
		}
		keys, err := r.store.Keys(ctx, domain.KeyPattern(t))
		if err != nil {
			return total, errors.WithMessagef(err, "cleanup %s", t)
		}
		for _, key := range keys {
			if err := pace.Wait(ctx); err != nil {
				return total, errors.WithMessage(err, "cleanup wait")
			}
			callCtx, cancel := r.callContext(ctx)
			res, err := r.store.Purge(callCtx, key, now, lim.Window)
			cancel()
			if err != nil {
				return total, errors.WithMessagef(err, "cleanup %s", key)
			}
			part := domain.CleanupStats{KeysProcessed: 1, EntriesRemoved: res.Removed}
			if res.Deleted {
				part.KeysDeleted = 1
			}
			total.Add(part)
		}
	}

	r.logger.Debug("rate limit cleanup finished",
		zap.Int("keys_processed", total.KeysProcessed),
		zap.Int("entries_removed", total.EntriesRemoved),
		zap.Int("keys_deleted", total.KeysDeleted),
	)
	return total, nil
}

// StartJanitor roda Cleanup periodicamente em uma goroutine.
// Pare cancelando o contexto.
func (r *RateLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := r.Cleanup(ctx); err != nil && ctx.Err() == nil {
					r.logger.Warn("rate limit cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

func (r *RateLimiter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.callTimeout)
}
