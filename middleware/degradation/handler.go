package degradation

import (
	"context"
	"net/http"

	"service-guard/middleware/degradation/domain"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const LevelHeader = "X-Service-Level"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Executor é o que os handlers precisam do gerenciador (application.Manager implementa).
type Executor interface {
	ExecuteWithDegradation(ctx context.Context, operation string, primary domain.Handler, args domain.Args) (any, error)
	ServiceLevel() domain.ServiceLevel
}

// Reporter expõe o estado para os endpoints de status.
type Reporter interface {
	Status() domain.Status
	HealthSummary() domain.HealthSummary
	ServiceLevel() domain.ServiceLevel
}

type ArgsFunc func(r *http.Request) domain.Args

type Options struct {
	Manager   Executor
	Operation string
	Primary   domain.Handler
	// Args extrai os argumentos; padrão: QueryArgs.
	Args   ArgsFunc
	Logger *zap.Logger
}

// QueryArgs usa o primeiro valor de cada parâmetro da query string.
func QueryArgs(r *http.Request) domain.Args {
	q := r.URL.Query()
	args := make(domain.Args, len(q))
	for k := range q {
		args[k] = q.Get(k)
	}
	return args
}

// Handler executa Operation pelo gerenciador e responde o resultado em JSON.
func Handler(opts Options) http.Handler {
	if opts.Args == nil {
		opts.Args = QueryArgs
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := opts.Manager.ExecuteWithDegradation(r.Context(), opts.Operation, opts.Primary, opts.Args(r))
		w.Header().Set(LevelHeader, opts.Manager.ServiceLevel().String())
		if err != nil {
			opts.Logger.Error("operation failed",
				zap.String("operation", opts.Operation),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

// StatusHandler responde o Status completo.
func StatusHandler(rep Reporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := rep.Status()
		w.Header().Set(LevelHeader, st.ServiceLevel.String())
		writeJSON(w, http.StatusOK, st)
	})
}

// HealthHandler responde o HealthSummary; 503 apenas quando Unavailable.
func HealthHandler(rep Reporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sum := rep.HealthSummary()
		w.Header().Set(LevelHeader, sum.ServiceLevel.String())
		code := http.StatusOK
		if sum.ServiceLevel == domain.Unavailable {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, sum)
	})
}

type levelSource interface {
	ServiceLevel() domain.ServiceLevel
}

// Middleware adiciona X-Service-Level em toda resposta do próximo handler.
func Middleware(src levelSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(LevelHeader, src.ServiceLevel().String())
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}
