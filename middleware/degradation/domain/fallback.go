package domain

import (
	"context"
	"time"
)

// Args são os argumentos nomeados de uma operação; entram na chave de cache.
type Args map[string]any

// Handler executa uma operação. O resultado do fallback é cacheado como veio.
type Handler func(ctx context.Context, args Args) (any, error)

const DefaultCacheTTL = 300 * time.Second

// FallbackOperation é registrada uma vez e não muda depois.
type FallbackOperation struct {
	Name                 string
	Handler              Handler
	CacheTTL             time.Duration
	RequiredDependencies []string
	// TriggeredLevel é informativo: aparece em Status e nos logs, mas não
	// decide quando o fallback roda (isso é RequiredDependencies).
	TriggeredLevel       ServiceLevel
}

// WithDefaults devolve a operação com TTL 300s e nível DegradedService quando zerados.
// Copia RequiredDependencies para que o chamador não altere o registro.
func (f FallbackOperation) WithDefaults() FallbackOperation {
	if f.CacheTTL <= 0 {
		f.CacheTTL = DefaultCacheTTL
	}
	if f.TriggeredLevel == LevelUnknown {
		f.TriggeredLevel = DegradedService
	}
	f.RequiredDependencies = append([]string(nil), f.RequiredDependencies...)
	return f
}
