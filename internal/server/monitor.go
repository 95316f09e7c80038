package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arena-server/internal/arena"
)

// Monitor evicts seats that stop talking to the server. Each sweep re-arms
// the timer, so a slow sweep delays the next one instead of overlapping it.
type Monitor struct {
	arena    *arena.Arena
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewMonitor(a *arena.Arena, interval time.Duration, logger *slog.Logger, metrics *Metrics) *Monitor {
	return &Monitor{
		arena:    a,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the sweep loop. A monitor runs at most once.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil || m.stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop and waits for an in-progress sweep to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.sweep()
			timer.Reset(m.interval)
		}
	}
}

func (m *Monitor) sweep() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("SWEEP_FAILED: timeout sweep panicked", "panic", r)
		}
	}()

	for _, ev := range m.arena.Sweep() {
		if m.metrics != nil {
			m.metrics.evictions.WithLabelValues(ev.Phase.String()).Inc()
		}
		name := ev.UserName
		if name == "" {
			name = fmt.Sprintf("seat %d", ev.Seat)
		}
		m.logger.Info(fmt.Sprintf("%s timed out", name), "seat", ev.Seat, "phase", ev.Phase.String())
	}
}
