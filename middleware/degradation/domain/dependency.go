package domain

import "context"

type DependencyStatus int

const (
	StatusUnknown DependencyStatus = iota
	StatusAvailable
	// StatusDegraded é reservado: os probes atuais só respondem sim/não.
	StatusDegraded
	StatusUnavailable
)

func (s DependencyStatus) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusDegraded:
		return "degraded"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func (s DependencyStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Probe é a consulta de saúde de uma dependência.
// Erro equivale a indisponível; o gerenciador nunca propaga esse erro.
type Probe interface {
	Probe(ctx context.Context) (bool, error)
}

// AvailabilityChecker é o adapter com consulta simples de disponibilidade.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context) bool
}

// ConnectionTester é o adapter que testa a conexão.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (bool, error)
}

type ProbeFunc func(ctx context.Context) (bool, error)

func (f ProbeFunc) Probe(ctx context.Context) (bool, error) { return f(ctx) }

// Availability adapta um AvailabilityChecker para Probe.
func Availability(c AvailabilityChecker) Probe {
	return ProbeFunc(func(ctx context.Context) (bool, error) {
		return c.IsAvailable(ctx), nil
	})
}

// Connection adapta um ConnectionTester para Probe.
func Connection(t ConnectionTester) Probe {
	return ProbeFunc(t.TestConnection)
}
