package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/replykit/internal/config"
	"github.com/xkilldash9x/replykit/internal/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testMonitor(cfg config.MonitorConfig) (*Monitor, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	var metrics engine.Metrics
	metrics.Attempts.Add(3)
	metrics.Confirmed.Add(2)
	return New(cfg, &metrics, zap.New(core)), logs
}

func TestMonitorSamplesAndStops(t *testing.T) {
	m, logs := testMonitor(config.MonitorConfig{
		SampleEvery: 10 * time.Millisecond,
		SoftLimitMB: 1 << 20, // never breached
	})

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("Resource sample").Len() > 0
	}, time.Second, 5*time.Millisecond)
	m.Stop()

	entry := logs.FilterMessage("Resource sample").All()[0]
	fields := entry.ContextMap()
	assert.EqualValues(t, 3, fields["attempts"])
	assert.EqualValues(t, 2, fields["confirmed"])
	assert.Contains(t, fields, "heapMB")
}

func TestMonitorSoftLimitBreachWarns(t *testing.T) {
	m, logs := testMonitor(config.MonitorConfig{
		SampleEvery: 10 * time.Millisecond,
		SoftLimitMB: 1, // any real heap breaches this immediately
	})

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("Heap usage above soft limit").Len() > 0
	}, time.Second, 5*time.Millisecond)
	m.Stop()
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	m, _ := testMonitor(config.MonitorConfig{SampleEvery: time.Hour})

	m.Start(context.Background())
	m.Start(context.Background()) // no second goroutine
	m.Stop()
	m.Stop() // no panic on double stop
}
