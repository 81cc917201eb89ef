package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Probe checks one dependency. A nil error means reachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Snapshot struct {
	Ready     bool      `json:"ready"`
	Reasons   []string  `json:"reasons,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor periodically re-evaluates dependency probes and keeps the
// latest snapshot for the readiness endpoint. It only reports;
// remediation belongs to the orchestrator watching the probe.
type Monitor struct {
	probes   []Probe
	interval time.Duration
	timeout  time.Duration

	snapshot atomic.Value // Snapshot
}

func NewMonitor(interval time.Duration, probes ...Probe) *Monitor {
	return &Monitor{
		probes:   probes,
		interval: interval,
		timeout:  2 * time.Second,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	m.Evaluate(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).Info().Msg("health monitor stopped")
			return
		case <-t.C:
			m.Evaluate(ctx)
		}
	}
}

func (m *Monitor) Evaluate(ctx context.Context) Snapshot {
	s := Snapshot{Ready: true, CheckedAt: time.Now().UTC()}
	for _, p := range m.probes {
		probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := p.Check(probeCtx)
		cancel()
		if err != nil {
			s.Ready = false
			s.Reasons = append(s.Reasons, p.Name+": "+err.Error())
		}
	}
	if !s.Ready {
		log.Ctx(ctx).Warn().Strs("reasons", s.Reasons).Msg("readiness check failed")
	}
	m.snapshot.Store(s)
	return s
}

// Current returns the latest snapshot, evaluating on demand when the
// loop has not produced one yet.
func (m *Monitor) Current(ctx context.Context) Snapshot {
	if s, ok := m.snapshot.Load().(Snapshot); ok {
		return s
	}
	return m.Evaluate(ctx)
}
