package tiering

import (
	"sync"

	"github.com/hupe1980/tiergo/model"
)

// keyedLock provides one try-lock per collection so at most one transition
// runs per collection at any time. Entries are created on acquire and
// removed on release, so the map only ever holds in-flight collections.
type keyedLock struct {
	mu   sync.Mutex
	held map[model.CollectionID]struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{
		held: make(map[model.CollectionID]struct{}),
	}
}

// TryAcquire takes the collection's lock if it is free. On success the
// returned release function must be called exactly once; calling it again
// is a no-op.
func (l *keyedLock) TryAcquire(collectionID model.CollectionID) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[collectionID]; busy {
		return nil, false
	}

	l.held[collectionID] = struct{}{}

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			delete(l.held, collectionID)
		})
	}, true
}

// Len returns the number of collections currently locked.
func (l *keyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.held)
}
