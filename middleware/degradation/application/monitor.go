package application

import (
	"context"
	"time"

	"service-guard/middleware/degradation/domain"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunHealthCheck executa um ciclo: consulta todos os probes (com timeout),
// atualiza os status e recalcula o nível. Nunca propaga falha de probe.
func (m *Manager) RunHealthCheck(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.deps))
	probes := make([]domain.Probe, 0, len(m.deps))
	gens := make([]uint64, 0, len(m.deps))
	for name, d := range m.deps {
		names = append(names, name)
		probes = append(probes, d.probe)
		gens = append(gens, d.gen)
	}
	m.mu.Unlock()

	results := make([]domain.DependencyStatus, len(probes))
	var g errgroup.Group
	g.SetLimit(max(m.probeConcurrency, 1))
	for i := range probes {
		i := i
		g.Go(func() error {
			results[i] = m.checkDependency(ctx, names[i], probes[i])
			return nil
		})
	}
	_ = g.Wait()

	// ciclo interrompido (StopMonitoring): não aplica resultados parciais
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, name := range names {
		d, ok := m.deps[name]
		if !ok || d.gen != gens[i] {
			// removida ou re-registrada durante o ciclo
			continue
		}
		d.status = results[i]
	}
	m.recomputeLocked()
}

func (m *Manager) checkDependency(ctx context.Context, name string, probe domain.Probe) domain.DependencyStatus {
	ok, err := m.callProbe(ctx, probe)
	if err != nil {
		m.logger.Warn("dependency probe failed",
			zap.String("dependency", name),
			zap.Error(err),
		)
		return domain.StatusUnavailable
	}
	if !ok {
		return domain.StatusUnavailable
	}
	return domain.StatusAvailable
}

type probeResult struct {
	ok  bool
	err error
}

// callProbe limita o probe a probeTimeout mesmo que ele ignore o ctx:
// o resultado tardio é descartado.
func (m *Manager) callProbe(ctx context.Context, probe domain.Probe) (bool, error) {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	done := make(chan probeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeResult{err: errors.Errorf("probe panic: %v", r)}
			}
		}()
		ok, err := probe.Probe(pctx)
		done <- probeResult{ok: ok, err: err}
	}()

	select {
	case res := <-done:
		return res.ok, res.err
	case <-pctx.Done():
		return false, errors.WithMessage(pctx.Err(), "probe timeout")
	}
}

// StartMonitoring inicia os loops de saúde e de limpeza do cache.
// Chamadas repetidas com o monitoramento ativo não fazem nada.
func (m *Manager) StartMonitoring(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(2)
	go m.loop(loopCtx, m.healthInterval, true, m.RunHealthCheck)
	go m.loop(loopCtx, m.cleanupInterval, false, func(context.Context) { m.CleanupCache() })
}

// StopMonitoring cancela os loops e espera os dois terminarem.
// Nenhuma iteração roda depois do retorno.
func (m *Manager) StopMonitoring() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil
}

func (m *Manager) loop(ctx context.Context, every time.Duration, immediate bool, fn func(context.Context)) {
	defer m.wg.Done()
	if every <= 0 {
		return
	}
	if immediate {
		fn(ctx)
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}
