package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLocksSerializeSameSession(t *testing.T) {
	locks := newSessionLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("sess-1")
			counter++
			locks.Unlock("sess-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestSessionLocksIndependentSessions(t *testing.T) {
	locks := newSessionLocks()

	locks.Lock("a")
	done := make(chan struct{})
	go func() {
		locks.Lock("b")
		locks.Unlock("b")
		close(done)
	}()
	<-done
	locks.Unlock("a")
}

func TestSessionLocksMapDoesNotGrow(t *testing.T) {
	locks := newSessionLocks()

	for i := 0; i < 100; i++ {
		locks.Lock("sess")
		locks.Unlock("sess")
	}

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
