package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestScopeLocks_BasicLockUnlock verifies basic lock/unlock operations.
func TestScopeLocks_BasicLockUnlock(t *testing.T) {
	locks := NewScopeLocks()

	locks.Lock("main.go")
	locks.Unlock("main.go")

	// Should be able to lock again after unlock
	locks.Lock("main.go")
	locks.Unlock("main.go")
}

// TestScopeLocks_SameResourceBlocks verifies that a shared resource serializes holders.
func TestScopeLocks_SameResourceBlocks(t *testing.T) {
	locks := NewScopeLocks()
	orderChan := make(chan int, 2)

	go func() {
		locks.Lock("main.go")
		orderChan <- 1
		time.Sleep(50 * time.Millisecond)
		locks.Unlock("main.go")
	}()

	time.Sleep(10 * time.Millisecond)

	go func() {
		locks.Lock("main.go")
		orderChan <- 2
		locks.Unlock("main.go")
	}()

	first := <-orderChan
	second := <-orderChan

	if first != 1 || second != 2 {
		t.Errorf("Expected order [1, 2], got [%d, %d]", first, second)
	}
}

// TestScopeLocks_DifferentResourcesConcurrent verifies that disjoint resources don't block.
func TestScopeLocks_DifferentResourcesConcurrent(t *testing.T) {
	locks := NewScopeLocks()
	var wg sync.WaitGroup
	var aLocked, bLocked atomic.Bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		locks.Lock("a.go")
		aLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		locks.Unlock("a.go")
	}()
	go func() {
		defer wg.Done()
		locks.Lock("b.go")
		bLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		locks.Unlock("b.go")
	}()

	time.Sleep(10 * time.Millisecond)
	if !aLocked.Load() || !bLocked.Load() {
		t.Error("Both goroutines should have acquired their locks concurrently")
	}

	wg.Wait()
}

// TestScopeLocks_LockAllOrdering verifies that opposite acquisition orders can't deadlock.
func TestScopeLocks_LockAllOrdering(t *testing.T) {
	locks := NewScopeLocks()
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		unlock := locks.LockAll([]string{"b.go", "a.go"})
		time.Sleep(10 * time.Millisecond)
		unlock()
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		unlock := locks.LockAll([]string{"a.go", "b.go"})
		time.Sleep(10 * time.Millisecond)
		unlock()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Deadlock detected: LockAll did not prevent deadlock through ordering")
	}
}

// TestScopeLocks_DuplicateEntries verifies that a scope listing a resource twice
// does not self-deadlock.
func TestScopeLocks_DuplicateEntries(t *testing.T) {
	locks := NewScopeLocks()

	done := make(chan struct{})
	go func() {
		unlock := locks.LockAll([]string{"a.go", "a.go", "b.go"})
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("LockAll deadlocked on duplicate scope entries")
	}
}

// TestScopeLocks_UnlockReleasesAll verifies that the returned func releases every lock.
func TestScopeLocks_UnlockReleasesAll(t *testing.T) {
	locks := NewScopeLocks()
	scope := []string{"a.go", "b.go", "c.go"}

	unlock := locks.LockAll(scope)
	unlock()

	acquired := make(chan bool, 1)
	go func() {
		unlock := locks.LockAll(scope)
		acquired <- true
		unlock()
	}()

	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Locks were not fully released")
	}
}

// TestScopeLocks_EmptyScope verifies that an empty scope is a no-op.
func TestScopeLocks_EmptyScope(t *testing.T) {
	locks := NewScopeLocks()

	unlock := locks.LockAll([]string{})
	unlock()
	unlock = locks.LockAll(nil)
	unlock()
}
