package service

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("driver-1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("observed %d goroutines in the critical section, want 1", maxInCritical)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("driver-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("driver-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutexEmptyKeyIsNoop(t *testing.T) {
	km := newKeyedMutex()

	unlock1 := km.Lock("")
	unlock2 := km.Lock("")
	unlock1()
	unlock2()

	if len(km.locks) != 0 {
		t.Fatalf("empty key left %d entries in the lock table", len(km.locks))
	}
}

// Lock entries are reclaimed once the last holder releases.
func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("driver-1")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Fatalf("lock table holds %d entries after release, want 0", len(km.locks))
	}
}
