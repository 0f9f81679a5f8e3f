package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão de Check vista de fora.
// Method/Path são opcionais e não dependem de HTTP.
//
// Identity tem cardinalidade alta: stores só a usam quando configurados para isso.
type StatsEvent struct {
	Identity  string
	LimitType LimitType
	Allowed   bool
	FailOpen  bool

	Method string
	Path   string

	At time.Time
}

// StatsStore grava decisões. Best-effort: erro aqui nunca muda a decisão.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
