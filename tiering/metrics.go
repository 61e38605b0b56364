package tiering

import (
	"time"

	"github.com/hupe1980/tiergo/model"
)

// MetricsObserver defines the interface for observing tiering activity.
type MetricsObserver interface {
	// OnTransition is called when a tier transition completes, whether
	// it succeeded or failed.
	OnTransition(from, to model.Tier, duration time.Duration, err error)

	// OnSnapshotCreate is called after a demotion wrote a snapshot.
	OnSnapshotCreate(duration time.Duration, sizeBytes int64, err error)

	// OnSnapshotRestore is called after a promotion read a snapshot back.
	OnSnapshotRestore(duration time.Duration, err error)

	// OnCycle is called when an evaluation cycle completes.
	OnCycle(duration time.Duration, transitions int)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (o *NoopMetricsObserver) OnTransition(from, to model.Tier, duration time.Duration, err error) {}
func (o *NoopMetricsObserver) OnSnapshotCreate(duration time.Duration, sizeBytes int64, err error) {}
func (o *NoopMetricsObserver) OnSnapshotRestore(duration time.Duration, err error)                 {}
func (o *NoopMetricsObserver) OnCycle(duration time.Duration, transitions int)                     {}
