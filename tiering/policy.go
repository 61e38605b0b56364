package tiering

import (
	"fmt"
	"time"
)

// Policy holds the thresholds that drive automatic tier transitions.
type Policy struct {
	// HotTTL is how long a hot collection may sit idle before it is
	// demoted to warm.
	HotTTL time.Duration

	// WarmTTL is how long a warm collection may sit idle before it is
	// demoted to cold.
	WarmTTL time.Duration

	// PromoteThreshold is the access count within the tracking window
	// at which a collection is promoted one tier up.
	PromoteThreshold int

	// AccessWindow is the length of the access-tracking window. Must not
	// exceed HotTTL, otherwise a collection could be demoted while still
	// accumulating promotion credit.
	AccessWindow time.Duration

	// WorkerInterval is the pause between automatic evaluation cycles.
	WorkerInterval time.Duration

	// MemoryBudgetBytes caps the combined resident size of hot
	// collections. 0 disables budget-driven eviction.
	MemoryBudgetBytes int64

	// MaxConcurrentTransitions bounds how many collections a single
	// cycle moves at the same time.
	MaxConcurrentTransitions int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		HotTTL:                   6 * time.Hour,
		WarmTTL:                  7 * 24 * time.Hour,
		PromoteThreshold:         10,
		AccessWindow:             time.Hour,
		WorkerInterval:           5 * time.Minute,
		MemoryBudgetBytes:        0,
		MaxConcurrentTransitions: 4,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.HotTTL <= 0 {
		return fmt.Errorf("tiering: hot TTL must be positive, got %v", p.HotTTL)
	}

	if p.WarmTTL <= 0 {
		return fmt.Errorf("tiering: warm TTL must be positive, got %v", p.WarmTTL)
	}

	if p.PromoteThreshold < 1 {
		return fmt.Errorf("tiering: promote threshold must be at least 1, got %d", p.PromoteThreshold)
	}

	if p.AccessWindow <= 0 {
		return fmt.Errorf("tiering: access window must be positive, got %v", p.AccessWindow)
	}

	if p.AccessWindow > p.HotTTL {
		return fmt.Errorf("tiering: access window %v must not exceed hot TTL %v", p.AccessWindow, p.HotTTL)
	}

	if p.WorkerInterval < time.Minute {
		return fmt.Errorf("tiering: worker interval must be at least 1m, got %v", p.WorkerInterval)
	}

	if p.MemoryBudgetBytes < 0 {
		return fmt.Errorf("tiering: memory budget must not be negative, got %d", p.MemoryBudgetBytes)
	}

	if p.MaxConcurrentTransitions < 1 {
		return fmt.Errorf("tiering: max concurrent transitions must be at least 1, got %d", p.MaxConcurrentTransitions)
	}

	return nil
}
