package objectstore

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Op names recorded in the call history of a MemoryStore.
const (
	OpPut    = "put"
	OpGet    = "get"
	OpDelete = "delete"
	OpList   = "list"
)

// Call is one recorded operation against a MemoryStore.
type Call struct {
	Op   string
	Key  string
	Err  error
	Time time.Time
}

// MemoryStore is an in-memory ObjectStore for testing.
//
// It is deterministic: fault behavior is driven by an explicit failure
// script and an optional seeded random failure rate, so a test that
// configures the same faults observes the same outcomes. Every operation
// is recorded in a call history for assertions. Thread-safe.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	history []Call
	script  []error
	always  error
	flaky   *rand.Rand
	rate    float64
	latency time.Duration
	noTrack bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithLatency injects a fixed delay before every operation, simulating
// network round-trip time. The delay honors context cancellation.
func WithLatency(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		m.latency = d
	}
}

// WithFailures scripts the outcome of upcoming operations: the Nth
// operation consumes the Nth entry (nil means success). Once the script
// is exhausted, operations succeed normally.
func WithFailures(errs ...error) MemoryOption {
	return func(m *MemoryStore) {
		m.script = append(m.script, errs...)
	}
}

// WithAlwaysFail makes every operation fail with err, simulating a total
// outage. A scripted failure queue, if present, is consumed first.
func WithAlwaysFail(err error) MemoryOption {
	return func(m *MemoryStore) {
		m.always = err
	}
}

// WithFlaky makes each operation fail with ErrServer at the given rate,
// driven by a seeded generator so runs are reproducible.
func WithFlaky(rate float64, seed int64) MemoryOption {
	return func(m *MemoryStore) {
		m.rate = rate
		m.flaky = rand.New(rand.NewSource(seed))
	}
}

// WithoutHistory disables call-history recording.
func WithoutHistory() MemoryOption {
	return func(m *MemoryStore) {
		m.noTrack = true
	}
}

// NewMemoryStore creates a new in-memory object store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		objects: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put writes an object atomically.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.nextErrLocked(); err != nil {
		return m.recordLocked(OpPut, key, err)
	}

	// Copy to prevent external mutation
	copied := make([]byte, len(data))
	copy(copied, data)
	m.objects[key] = copied
	return m.recordLocked(OpPut, key, nil)
}

// Get returns the full content of an object.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.nextErrLocked(); err != nil {
		return nil, m.recordLocked(OpGet, key, err)
	}

	data, ok := m.objects[key]
	if !ok {
		return nil, m.recordLocked(OpGet, key, fmt.Errorf("%w: %s", ErrNotFound, key))
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, m.recordLocked(OpGet, key, nil)
}

// Delete removes an object. Deleting an absent key returns ErrNotFound.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.nextErrLocked(); err != nil {
		return m.recordLocked(OpDelete, key, err)
	}

	if _, ok := m.objects[key]; !ok {
		return m.recordLocked(OpDelete, key, fmt.Errorf("%w: %s", ErrNotFound, key))
	}
	delete(m.objects, key)
	return m.recordLocked(OpDelete, key, nil)
}

// List returns all keys with the given prefix, sorted ascending.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.nextErrLocked(); err != nil {
		return nil, m.recordLocked(OpList, prefix, err)
	}

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, m.recordLocked(OpList, prefix, nil)
}

// Calls returns a copy of the recorded call history in execution order.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, len(m.history))
	copy(out, m.history)
	return out
}

// CallsFor returns the recorded calls for a single operation.
func (m *MemoryStore) CallsFor(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.history {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// SuccessfulCalls counts recorded calls for op that succeeded.
func (m *MemoryStore) SuccessfulCalls(op string) int {
	return m.countCalls(op, false)
}

// FailedCalls counts recorded calls for op that failed.
func (m *MemoryStore) FailedCalls(op string) int {
	return m.countCalls(op, true)
}

func (m *MemoryStore) countCalls(op string, failed bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.history {
		if c.Op == op && (c.Err != nil) == failed {
			n++
		}
	}
	return n
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Contains reports whether an object exists under key.
func (m *MemoryStore) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Reset clears stored objects, the call history, and any remaining
// failure script. Configured latency, always-fail and flaky behavior
// are retained.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects = make(map[string][]byte)
	m.history = nil
	m.script = nil
}

// nextErrLocked consumes the next scripted outcome, falling back to the
// always-fail error and then the seeded failure rate.
func (m *MemoryStore) nextErrLocked() error {
	if len(m.script) > 0 {
		err := m.script[0]
		m.script = m.script[1:]
		return err
	}
	if m.always != nil {
		return m.always
	}
	if m.flaky != nil && m.flaky.Float64() < m.rate {
		return fmt.Errorf("%w: injected failure", ErrServer)
	}
	return nil
}

func (m *MemoryStore) recordLocked(op, key string, err error) error {
	if !m.noTrack {
		m.history = append(m.history, Call{Op: op, Key: key, Err: err, Time: time.Now()})
	}
	return err
}

func (m *MemoryStore) sleep(ctx context.Context) error {
	if m.latency <= 0 {
		return nil
	}
	t := time.NewTimer(m.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
