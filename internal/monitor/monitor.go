// File: internal/monitor/monitor.go
// Resource monitor: samples process memory and engine counters on a ticker
// and logs soft-limit breaches. Explicitly constructed and injected; it owns
// one goroutine between Start and Stop.
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replykit/internal/config"
	"github.com/xkilldash9x/replykit/internal/engine"
)

// Monitor periodically samples runtime memory and the send engine's
// outcome counters.
type Monitor struct {
	cfg     config.MonitorConfig
	metrics *engine.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a monitor over the shared engine metrics.
func New(cfg config.MonitorConfig, metrics *engine.Metrics, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("monitor"),
	}
}

// Start launches the sampling goroutine. Starting a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
	m.logger.Info("Resource monitor started",
		zap.Duration("sampleEvery", m.cfg.SampleEvery),
		zap.Int("softLimitMB", m.cfg.SoftLimitMB))
}

// Stop halts sampling and waits for the goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("Resource monitor stopped")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.SampleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample takes one reading and logs it. A soft-limit breach is a warning,
// never an intervention: the monitor observes, the operator decides.
func (m *Monitor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heapMB := int(ms.HeapAlloc / (1 << 20))

	fields := []zap.Field{
		zap.Int("heapMB", heapMB),
		zap.Uint32("numGC", ms.NumGC),
		zap.Int("goroutines", runtime.NumGoroutine()),
	}
	if m.metrics != nil {
		snap := m.metrics.Snapshot()
		fields = append(fields,
			zap.Int64("attempts", snap.Attempts),
			zap.Int64("confirmed", snap.Confirmed),
			zap.Int64("notFound", snap.NotFound),
			zap.Int64("interactionFailed", snap.InteractionFailed),
			zap.Int64("unconfirmed", snap.Unconfirmed),
			zap.Int64("rejected", snap.Rejected),
		)
	}

	if m.cfg.SoftLimitMB > 0 && heapMB >= m.cfg.SoftLimitMB {
		m.logger.Warn("Heap usage above soft limit", fields...)
		return
	}
	if m.cfg.ReportSamples {
		m.logger.Info("Resource sample", fields...)
	} else {
		m.logger.Debug("Resource sample", fields...)
	}
}
