package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http nem de redis.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LimitType identifica a família de limite aplicada a uma identidade.
type LimitType string

const (
	UserEvents       LimitType = "user_events"
	APIRequests      LimitType = "api_requests"
	AnalyticsQueries LimitType = "analytics_queries"
)

// AllLimitTypes lista os tipos na ordem usada por Reset/GlobalStats/Cleanup.
func AllLimitTypes() []LimitType {
	return []LimitType{UserEvents, APIRequests, AnalyticsQueries}
}

func (t LimitType) Valid() bool {
	switch t {
	case UserEvents, APIRequests, AnalyticsQueries:
		return true
	}
	return false
}

// Limit é o par (quantidade, janela) de um tipo.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Limits é a tabela imutável de limites padrão por tipo.
// Sempre trate como valor: use With para derivar uma tabela nova.
type Limits map[LimitType]Limit

// DefaultLimits retorna uma cópia nova da tabela padrão.
func DefaultLimits() Limits {
	return Limits{
		UserEvents:       {Requests: 100, Window: time.Minute},
		APIRequests:      {Requests: 1000, Window: time.Hour},
		AnalyticsQueries: {Requests: 50, Window: time.Minute},
	}
}

// Get retorna o limite do tipo. O bool é false se o tipo não estiver na tabela.
func (l Limits) Get(t LimitType) (Limit, bool) {
	lim, ok := l[t]
	return lim, ok
}

// With devolve uma cópia da tabela com o tipo sobrescrito.
func (l Limits) With(t LimitType, lim Limit) Limits {
	out := make(Limits, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out[t] = lim
	return out
}

// Key monta a chave do shared store para identidade+tipo.
func Key(t LimitType, identity string) string {
	return fmt.Sprintf("rate_limit:%s:user:%s", t, identity)
}

// KeyPattern é o padrão de SCAN que cobre todas as identidades de um tipo.
func KeyPattern(t LimitType) string {
	return fmt.Sprintf("rate_limit:%s:user:*", t)
}

// ExpiryGrace é somado à janela no EXPIRE da chave (GC no servidor).
const ExpiryGrace = 60 * time.Second

// Result é a decisão de admissão.
//
// Invariantes: RetryAfter > 0 se e somente se Allowed == false;
// Remaining == 0 quando Allowed == false.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
	// RetryAfter em segundos inteiros (>= 1s) quando bloqueado; 0 quando permitido.
	RetryAfter time.Duration
	// FailOpen indica que a decisão foi tomada sem consultar o store (store indisponível).
	FailOpen bool
}

// StatusSnapshot é a leitura não mutante (não insere entrada) de uma janela.
type StatusSnapshot struct {
	LimitType LimitType
	Count     int
	Limit     int
	Remaining int
	ResetTime time.Time
	IsLimited bool
}

// TypeStats agrega as janelas ativas de um tipo. Só para observabilidade.
type TypeStats struct {
	ActiveUsers   int
	TotalRequests int
	Limit         int
	Window        time.Duration
}

// CleanupStats são os contadores de uma varredura de limpeza.
type CleanupStats struct {
	KeysProcessed  int
	EntriesRemoved int
	KeysDeleted    int
}

func (s *CleanupStats) Add(o CleanupStats) {
	s.KeysProcessed += o.KeysProcessed
	s.EntriesRemoved += o.EntriesRemoved
	s.KeysDeleted += o.KeysDeleted
}

// WindowResult é o retorno cru da transação de admissão no store.
type WindowResult struct {
	Admitted bool
	// Count é a quantidade de entradas vivas antes da inserção.
	Count int
	// Oldest é o timestamp da entrada mais antiga viva; zero se não houver.
	Oldest time.Time
}

// WindowState é o retorno cru de uma inspeção (sem inserção).
type WindowState struct {
	Count  int
	Oldest time.Time
}

// PurgeResult é o retorno da limpeza de uma chave.
type PurgeResult struct {
	Removed int
	Deleted bool
}

// ErrStoreUnavailable marca falhas de infraestrutura do shared store.
// A camada de aplicação trata esse erro com fail-open em Check.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// ErrUnknownLimitType: tipo fora da tabela de limites e sem override.
var ErrUnknownLimitType = errors.New("unknown limit type")

// WindowStore é o shared store de janelas deslizantes.
//
// Admit deve executar purge+count+insert+expire como uma unidade atômica no servidor.
// Purge e Inspect nunca removem uma entrada antes de expirar a janela com que ela
// foi admitida, mesmo quando chamados com janela menor.
type WindowStore interface {
	Admit(ctx context.Context, key string, now time.Time, lim Limit, member string) (WindowResult, error)
	Inspect(ctx context.Context, key string, now time.Time, window time.Duration) (WindowState, error)
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Purge(ctx context.Context, key string, now time.Time, window time.Duration) (PurgeResult, error)
}
