// Package healthcheck polls a server's health endpoint and reports state
// transitions.
package healthcheck

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	vaulterrors "github.com/blueberrycongee/vaultclient/pkg/errors"
	"github.com/blueberrycongee/vaultclient/pkg/types"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 10 * time.Second
)

// State summarizes one health probe.
type State string

// Probe outcomes.
const (
	StateUnknown       State = "unknown"
	StateActive        State = "active"
	StateStandby       State = "standby"
	StateSealed        State = "sealed"
	StateUninitialized State = "uninitialized"
	StateUnreachable   State = "unreachable"
)

// Config controls the prober.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Checker reports server health. *vaultclient.AdminClient satisfies it.
type Checker interface {
	Health(ctx context.Context) (*types.HealthResponse, error)
}

// Status is the outcome of the latest probe.
type Status struct {
	State     State
	Err       error
	CheckedAt time.Time
	Probes    int64
}

// Prober periodically checks server health.
type Prober struct {
	cfg     Config
	checker Checker
	logger  *slog.Logger
	started atomic.Bool
	probes  atomic.Int64

	mu       sync.Mutex
	status   Status
	onChange []func(prev, next Status)
}

// NewProber creates a prober for checker.
func NewProber(cfg Config, checker Checker, logger *slog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:     cfg,
		checker: checker,
		logger:  logger,
		status:  Status{State: StateUnknown},
	}
}

// OnChange registers fn to be called whenever the probed state changes.
func (p *Prober) OnChange(fn func(prev, next Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

// Status returns the outcome of the latest probe.
func (p *Prober) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start probes immediately and then every interval until ctx is canceled.
// Calling Start more than once has no effect.
func (p *Prober) Start(ctx context.Context) {
	if p == nil || p.checker == nil {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-ctx.Done():
			p.logger.Info("health prober stopped")
			return
		}
	}
}

// RunOnce performs a single probe and returns its outcome.
func (p *Prober) RunOnce(ctx context.Context) Status {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.checker.Health(probeCtx)
	next := Status{
		State:     classify(resp, err),
		Err:       err,
		CheckedAt: time.Now(),
		Probes:    p.probes.Add(1),
	}

	p.mu.Lock()
	prev := p.status
	p.status = next
	listeners := append([]func(prev, next Status){}, p.onChange...)
	p.mu.Unlock()

	if prev.State == next.State {
		return next
	}
	if err != nil {
		p.logger.Warn("health state changed", "from", prev.State, "to", next.State, "error", err)
	} else {
		p.logger.Info("health state changed", "from", prev.State, "to", next.State)
	}
	for _, fn := range listeners {
		fn(prev, next)
	}
	return next
}

// classify maps a probe result to a State. Sealed (503) and uninitialized
// (501) servers answer with error statuses but are still reachable.
func classify(resp *types.HealthResponse, err error) State {
	var serverErr *vaulterrors.ServerError
	switch {
	case errors.As(err, &serverErr) && serverErr.StatusCode == http.StatusServiceUnavailable:
		return StateSealed
	case errors.As(err, &serverErr) && serverErr.StatusCode == http.StatusNotImplemented:
		return StateUninitialized
	case err != nil || resp == nil:
		return StateUnreachable
	case !resp.Initialized:
		return StateUninitialized
	case resp.Sealed:
		return StateSealed
	case resp.Standby:
		return StateStandby
	default:
		return StateActive
	}
}
