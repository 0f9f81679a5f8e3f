package infra

import (
	"context"
	"sync"

	"service-guard/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	FailOpen int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch {
	case !ev.Allowed:
		c.Denied++
	case ev.FailOpen:
		c.Allowed++
		c.FailOpen++
	default:
		c.Allowed++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byType     map[domain.LimitType]Counters
	byIdentity map[string]Counters

	trackIdentities bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentities(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentities = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byType:     make(map[domain.LimitType]Counters),
		byIdentity: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byType[ev.LimitType]
	c.add(ev)
	s.byType[ev.LimitType] = c

	if s.trackIdentities && ev.Identity != "" {
		k := s.byIdentity[ev.Identity]
		k.add(ev)
		s.byIdentity[ev.Identity] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByType() map[domain.LimitType]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.LimitType]Counters, len(s.byType))
	for k, v := range s.byType {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByIdentity() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byIdentity))
	for k, v := range s.byIdentity {
		out[k] = v
	}
	return out
}
