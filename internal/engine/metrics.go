// File: internal/engine/metrics.go
package engine

import "sync/atomic"

// Metrics counts send-attempt outcomes. Counters are cumulative for the
// process lifetime and safe for concurrent readers (the resource monitor
// samples them from its own goroutine).
type Metrics struct {
	Attempts          atomic.Int64
	Confirmed         atomic.Int64
	NotFound          atomic.Int64
	InteractionFailed atomic.Int64
	Unconfirmed       atomic.Int64
	Rejected          atomic.Int64 // in-flight guard rejections
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Attempts          int64
	Confirmed         int64
	NotFound          int64
	InteractionFailed int64
	Unconfirmed       int64
	Rejected          int64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Attempts:          m.Attempts.Load(),
		Confirmed:         m.Confirmed.Load(),
		NotFound:          m.NotFound.Load(),
		InteractionFailed: m.InteractionFailed.Load(),
		Unconfirmed:       m.Unconfirmed.Load(),
		Rejected:          m.Rejected.Load(),
	}
}
