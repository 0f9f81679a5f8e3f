package infra

import (
	"context"

	"service-guard/middleware/ratelimit/domain"
)

// MultiStatsStore repassa o evento para todos os stores, na ordem.
// Retorna o primeiro erro, mas sempre passa por todos.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
