package domain

import "time"

// Status é a projeção somente leitura das métricas do gerenciador.
type Status struct {
	ServiceLevel   ServiceLevel                `json:"service_level"`
	Dependencies   map[string]DependencyStatus `json:"dependencies"`
	SuccessfulOps  int64                       `json:"successful_ops"`
	FallbackOps    int64                       `json:"fallback_ops"`
	FailedOps      int64                       `json:"failed_ops"`
	CacheSize      int                         `json:"cache_size"`
	CacheHitRate   float64                     `json:"cache_hit_rate"`
	Fallbacks      []string                    `json:"fallbacks"`
	// FallbackLevels: nível declarado (TriggeredLevel) de cada fallback registrado.
	FallbackLevels map[string]ServiceLevel     `json:"fallback_levels"`
	LastUpdate     time.Time                   `json:"last_update"`
}

// HealthSummary é o resumo de saúde para quem só precisa saber o que está fora.
type HealthSummary struct {
	ServiceLevel            ServiceLevel `json:"service_level"`
	Healthy                 bool         `json:"healthy"`
	UnavailableDependencies []string     `json:"unavailable_dependencies"`
	CacheAvailable          bool         `json:"cache_available"`
	CacheHitRate            float64      `json:"cache_hit_rate"`
	LastUpdate              time.Time    `json:"last_update"`
}

// HitRate = fallbackOps / max(successfulOps+fallbackOps, 1).
func HitRate(successful, fallback int64) float64 {
	return float64(fallback) / float64(max(successful+fallback, 1))
}
