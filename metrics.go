package tiergo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/tiergo/model"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    transitionCounter *prometheus.CounterVec
//	    cycleHistogram    prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordTransition(from, to model.Tier, duration time.Duration, err error) {
//	    p.transitionCounter.WithLabelValues(from.String(), to.String()).Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordAccess is called for every recorded collection access.
	RecordAccess()

	// RecordTransition is called after each tier transition.
	// duration is the total time taken, err is nil if successful.
	RecordTransition(from, to model.Tier, duration time.Duration, err error)

	// RecordSnapshotCreate is called after a demotion wrote a snapshot.
	// sizeBytes is the compressed data object size.
	RecordSnapshotCreate(duration time.Duration, sizeBytes int64, err error)

	// RecordSnapshotRestore is called after a promotion read a snapshot back.
	RecordSnapshotRestore(duration time.Duration, err error)

	// RecordCycle is called after each policy evaluation cycle.
	// transitions is the number of collections the cycle moved.
	RecordCycle(duration time.Duration, transitions int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAccess()                                                 {}
func (NoopMetricsCollector) RecordTransition(model.Tier, model.Tier, time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshotCreate(time.Duration, int64, error)              {}
func (NoopMetricsCollector) RecordSnapshotRestore(time.Duration, error)                    {}
func (NoopMetricsCollector) RecordCycle(time.Duration, int)                                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AccessCount           atomic.Int64
	TransitionCount       atomic.Int64
	TransitionErrors      atomic.Int64
	TransitionTotalNanos  atomic.Int64
	Demotions             atomic.Int64
	Promotions            atomic.Int64
	SnapshotCreates       atomic.Int64
	SnapshotCreateErrors  atomic.Int64
	SnapshotBytes         atomic.Int64
	SnapshotRestores      atomic.Int64
	SnapshotRestoreErrors atomic.Int64
	CycleCount            atomic.Int64
	CycleTransitions      atomic.Int64
}

// RecordAccess implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAccess() {
	b.AccessCount.Add(1)
}

// RecordTransition implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransition(from, to model.Tier, duration time.Duration, err error) {
	b.TransitionCount.Add(1)
	b.TransitionTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TransitionErrors.Add(1)
		return
	}
	// Tiers are ordered hot < warm < cold
	if to > from {
		b.Demotions.Add(1)
	} else {
		b.Promotions.Add(1)
	}
}

// RecordSnapshotCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotCreate(duration time.Duration, sizeBytes int64, err error) {
	b.SnapshotCreates.Add(1)
	b.SnapshotBytes.Add(sizeBytes)
	if err != nil {
		b.SnapshotCreateErrors.Add(1)
	}
}

// RecordSnapshotRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotRestore(duration time.Duration, err error) {
	b.SnapshotRestores.Add(1)
	if err != nil {
		b.SnapshotRestoreErrors.Add(1)
	}
}

// RecordCycle implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCycle(duration time.Duration, transitions int) {
	b.CycleCount.Add(1)
	b.CycleTransitions.Add(int64(transitions))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AccessCount:           b.AccessCount.Load(),
		TransitionCount:       b.TransitionCount.Load(),
		TransitionErrors:      b.TransitionErrors.Load(),
		TransitionAvgNanos:    b.getAvgTransitionNanos(),
		Demotions:             b.Demotions.Load(),
		Promotions:            b.Promotions.Load(),
		SnapshotCreates:       b.SnapshotCreates.Load(),
		SnapshotCreateErrors:  b.SnapshotCreateErrors.Load(),
		SnapshotBytes:         b.SnapshotBytes.Load(),
		SnapshotRestores:      b.SnapshotRestores.Load(),
		SnapshotRestoreErrors: b.SnapshotRestoreErrors.Load(),
		CycleCount:            b.CycleCount.Load(),
		CycleTransitions:      b.CycleTransitions.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgTransitionNanos() int64 {
	count := b.TransitionCount.Load()
	if count == 0 {
		return 0
	}
	return b.TransitionTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AccessCount           int64
	TransitionCount       int64
	TransitionErrors      int64
	TransitionAvgNanos    int64
	Demotions             int64
	Promotions            int64
	SnapshotCreates       int64
	SnapshotCreateErrors  int64
	SnapshotBytes         int64
	SnapshotRestores      int64
	SnapshotRestoreErrors int64
	CycleCount            int64
	CycleTransitions      int64
}

// managerObserver forwards tiering manager events to a MetricsCollector.
type managerObserver struct {
	metrics MetricsCollector
}

func (o *managerObserver) OnTransition(from, to model.Tier, duration time.Duration, err error) {
	o.metrics.RecordTransition(from, to, duration, err)
}

func (o *managerObserver) OnSnapshotCreate(duration time.Duration, sizeBytes int64, err error) {
	o.metrics.RecordSnapshotCreate(duration, sizeBytes, err)
}

func (o *managerObserver) OnSnapshotRestore(duration time.Duration, err error) {
	o.metrics.RecordSnapshotRestore(duration, err)
}

func (o *managerObserver) OnCycle(duration time.Duration, transitions int) {
	o.metrics.RecordCycle(duration, transitions)
}
