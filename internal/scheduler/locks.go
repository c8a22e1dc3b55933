package scheduler

import "sync"

// ScopeLocks provides per-resource mutual exclusion for tasks that run
// concurrently. Each scope entry gets its own mutex, so tasks touching
// different resources proceed in parallel while tasks sharing one serialize.
type ScopeLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-resource mutexes
}

// NewScopeLocks creates an empty lock table.
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for a single resource, creating it on first use.
func (s *ScopeLocks) Lock(resource string) {
	s.mu.Lock()
	l, exists := s.locks[resource]
	if !exists {
		l = &sync.Mutex{}
		s.locks[resource] = l
	}
	s.mu.Unlock()

	// Block outside the table lock
	l.Lock()
}

// Unlock releases the mutex for a single resource.
func (s *ScopeLocks) Unlock(resource string) {
	s.mu.Lock()
	l, exists := s.locks[resource]
	s.mu.Unlock()

	if exists {
		l.Unlock()
	}
}

// LockAll acquires every resource in the scope and returns a func that
// releases them. Resources are deduplicated and taken in sorted order, so two
// callers with overlapping scopes can never deadlock.
func (s *ScopeLocks) LockAll(scope []string) (unlock func()) {
	resources, _ := dedupeSorted(scope)
	for _, r := range resources {
		s.Lock(r)
	}
	return func() {
		for i := len(resources) - 1; i >= 0; i-- {
			s.Unlock(resources[i])
		}
	}
}
