package domain

// ServiceLevel é o resumo ordenado da saúde do sistema.
// Só o gerenciador calcula o nível (LevelFor); chamadores não o definem.
type ServiceLevel int

const (
	LevelUnknown ServiceLevel = iota
	FullService
	DegradedService
	LimitedService
	CacheOnly
	Unavailable
)

func (l ServiceLevel) String() string {
	switch l {
	case FullService:
		return "full_service"
	case DegradedService:
		return "degraded_service"
	case LimitedService:
		return "limited_service"
	case CacheOnly:
		return "cache_only"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func (l ServiceLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// LevelFor é a função de transição: depende só da razão available/total
// e, com razão zero, de o cache ter alguma entrada viva.
// Sem dependências registradas a razão é 0.
func LevelFor(available, total int, cacheNonEmpty bool) ServiceLevel {
	var r float64
	if total > 0 {
		r = float64(available) / float64(total)
	}
	switch {
	case r >= 1.0:
		return FullService
	case r >= 0.5:
		return DegradedService
	case r > 0:
		return LimitedService
	case cacheNonEmpty:
		return CacheOnly
	default:
		return Unavailable
	}
}
