package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"service-guard/middleware/degradation/domain"
	"service-guard/middleware/ttlcache"

	"go.uber.org/zap"
)

type dependency struct {
	probe  domain.Probe
	status domain.DependencyStatus
	// gen muda a cada registro; descarta resultado de probe antigo.
	gen uint64
}

// Manager mantém a saúde das dependências, deriva o ServiceLevel e executa
// operações pelo caminho primário ou pelo fallback cacheado.
//
// Dependências, fallbacks, nível e contadores ficam sob mu; o cache tem
// trava própria. Probes rodam fora da trava.
type Manager struct {
	mu         sync.Mutex
	deps       map[string]*dependency
	fallbacks  map[string]domain.FallbackOperation
	level      domain.ServiceLevel
	successful int64
	fallback   int64
	failed     int64
	lastUpdate time.Time
	gen        uint64

	cache  *ttlcache.Cache
	logger *zap.Logger
	now    func() time.Time

	healthInterval   time.Duration
	cleanupInterval  time.Duration
	probeTimeout     time.Duration
	probeConcurrency int

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock injeta o relógio (testes). Também vale para o cache interno.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithHealthCheckInterval(d time.Duration) Option {
	return func(m *Manager) { m.healthInterval = d }
}

func WithCacheCleanupInterval(d time.Duration) Option {
	return func(m *Manager) { m.cleanupInterval = d }
}

// WithProbeTimeout limita cada probe. Um probe travado conta como indisponível.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.probeTimeout = d }
}

// WithProbeConcurrency limita quantos probes rodam ao mesmo tempo.
func WithProbeConcurrency(n int) Option {
	return func(m *Manager) { m.probeConcurrency = n }
}

// WithCache troca o cache de resultados de fallback.
func WithCache(c *ttlcache.Cache) Option {
	return func(m *Manager) { m.cache = c }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		deps:             make(map[string]*dependency),
		fallbacks:        make(map[string]domain.FallbackOperation),
		level:            domain.LevelUnknown,
		logger:           zap.NewNop(),
		now:              time.Now,
		healthInterval:   30 * time.Second,
		cleanupInterval:  300 * time.Second,
		probeTimeout:     5 * time.Second,
		probeConcurrency: 8,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = ttlcache.New(ttlcache.WithClock(m.now))
	}
	return m
}

// RegisterDependency guarda o probe e zera o status para Unknown.
func (m *Manager) RegisterDependency(name string, probe domain.Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.deps[name] = &dependency{probe: probe, status: domain.StatusUnknown, gen: m.gen}
}

// RegisterFallback registra (ou substitui) o fallback da operação.
func (m *Manager) RegisterFallback(op domain.FallbackOperation) {
	op = op.WithDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[op.Name] = op
}

// ExecuteWithDegradation roda primary ou, se alguma dependência exigida pelo
// fallback registrado não estiver Available, o fallback com cache.
//
// Erros de primary e do fallback voltam sem alteração.
func (m *Manager) ExecuteWithDegradation(ctx context.Context, operation string, primary domain.Handler, args domain.Args) (any, error) {
	m.mu.Lock()
	fb, ok := m.fallbacks[operation]
	useFallback := ok && !m.allAvailableLocked(fb.RequiredDependencies)
	m.mu.Unlock()

	if !useFallback {
		return m.runPrimary(ctx, primary, args)
	}
	return m.runFallback(ctx, fb, args)
}

func (m *Manager) runPrimary(ctx context.Context, primary domain.Handler, args domain.Args) (any, error) {
	res, err := primary(ctx, args)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
		return nil, err
	}
	m.successful++
	return res, nil
}

func (m *Manager) runFallback(ctx context.Context, fb domain.FallbackOperation, args domain.Args) (any, error) {
	key, keyErr := cacheKey(fb.Name, args)
	if keyErr != nil {
		m.logger.Warn("fallback args not cacheable",
			zap.String("operation", fb.Name),
			zap.Error(keyErr),
		)
	} else if data, ok := m.cache.Get(key); ok {
		m.incFallback()
		return data, nil
	}

	m.logger.Debug("executing fallback",
		zap.String("operation", fb.Name),
		zap.Stringer("triggered_level", fb.TriggeredLevel),
	)
	res, err := fb.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if keyErr == nil {
		m.cache.Set(key, res, fb.CacheTTL)
	}
	m.incFallback()
	return res, nil
}

func (m *Manager) incFallback() {
	m.mu.Lock()
	m.fallback++
	m.mu.Unlock()
}

// allAvailableLocked: dependência não registrada conta como indisponível.
func (m *Manager) allAvailableLocked(names []string) bool {
	for _, name := range names {
		d, ok := m.deps[name]
		if !ok || d.status != domain.StatusAvailable {
			return false
		}
	}
	return true
}

// recomputeLocked aplica a função de transição e registra a mudança.
// É o único lugar que altera m.level.
func (m *Manager) recomputeLocked() {
	available := 0
	for _, d := range m.deps {
		if d.status == domain.StatusAvailable {
			available++
		}
	}
	next := domain.LevelFor(available, len(m.deps), m.cache.Len() > 0)
	if next != m.level {
		m.logger.Info("service level changed",
			zap.Stringer("from", m.level),
			zap.Stringer("to", next),
			zap.Int("available", available),
			zap.Int("total", len(m.deps)),
		)
		m.level = next
	}
	m.lastUpdate = m.now()
}

// CleanupCache remove entradas expiradas e retorna quantas saíram.
// Se algo saiu e já houve um ciclo de saúde, recalcula o nível
// (CacheOnly cai para Unavailable quando o cache esvazia).
func (m *Manager) CleanupCache() int {
	removed := m.cache.Purge()
	if removed == 0 {
		return 0
	}
	m.logger.Debug("fallback cache purged", zap.Int("removed", removed))

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deps) > 0 && m.level != domain.LevelUnknown {
		m.recomputeLocked()
	}
	return removed
}

// ServiceLevel retorna o nível atual.
func (m *Manager) ServiceLevel() domain.ServiceLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Manager) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	deps := make(map[string]domain.DependencyStatus, len(m.deps))
	for name, d := range m.deps {
		deps[name] = d.status
	}
	fallbacks := make([]string, 0, len(m.fallbacks))
	levels := make(map[string]domain.ServiceLevel, len(m.fallbacks))
	for name, fb := range m.fallbacks {
		fallbacks = append(fallbacks, name)
		levels[name] = fb.TriggeredLevel
	}
	sort.Strings(fallbacks)

	return domain.Status{
		ServiceLevel:   m.level,
		Dependencies:   deps,
		SuccessfulOps:  m.successful,
		FallbackOps:    m.fallback,
		FailedOps:      m.failed,
		CacheSize:      m.cache.Len(),
		CacheHitRate:   domain.HitRate(m.successful, m.fallback),
		Fallbacks:      fallbacks,
		FallbackLevels: levels,
		LastUpdate:     m.lastUpdate,
	}
}

func (m *Manager) HealthSummary() domain.HealthSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	down := make([]string, 0)
	for name, d := range m.deps {
		if d.status != domain.StatusAvailable {
			down = append(down, name)
		}
	}
	sort.Strings(down)

	return domain.HealthSummary{
		ServiceLevel:            m.level,
		Healthy:                 m.level == domain.FullService,
		UnavailableDependencies: down,
		CacheAvailable:          m.cache.Len() > 0,
		CacheHitRate:            domain.HitRate(m.successful, m.fallback),
		LastUpdate:              m.lastUpdate,
	}
}
