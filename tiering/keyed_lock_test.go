package tiering

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLock_TryAcquire(t *testing.T) {
	locks := newKeyedLock()

	release, ok := locks.TryAcquire("c1")
	require.True(t, ok)
	assert.Equal(t, 1, locks.Len())

	_, ok = locks.TryAcquire("c1")
	assert.False(t, ok)

	// Other collections are independent
	release2, ok := locks.TryAcquire("c2")
	require.True(t, ok)
	assert.Equal(t, 2, locks.Len())

	release()
	release2()
	assert.Equal(t, 0, locks.Len())

	// Released locks can be taken again
	release, ok = locks.TryAcquire("c1")
	require.True(t, ok)
	release()
}

func TestKeyedLock_ReleaseIsIdempotent(t *testing.T) {
	locks := newKeyedLock()

	release, ok := locks.TryAcquire("c1")
	require.True(t, ok)

	release()
	release()
	assert.Equal(t, 0, locks.Len())

	// A stale double release must not free a later holder's lock
	release2, ok := locks.TryAcquire("c1")
	require.True(t, ok)

	release()
	assert.Equal(t, 1, locks.Len())

	release2()
	assert.Equal(t, 0, locks.Len())
}

func TestKeyedLock_SingleWinnerUnderContention(t *testing.T) {
	locks := newKeyedLock()

	const goroutines = 32

	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		mu       sync.Mutex
		releases []func()
	)

	startCh := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-startCh

			// No one releases until every goroutine has tried
			if release, ok := locks.TryAcquire("shared"); ok {
				wins.Add(1)

				mu.Lock()
				releases = append(releases, release)
				mu.Unlock()
			}
		}()
	}

	close(startCh)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	require.Len(t, releases, 1)

	releases[0]()
	assert.Equal(t, 0, locks.Len())
}
