package server

import "sync"

// LockManager holds one lock per project so that only one trigger can be
// in flight for a project at a time, while distinct projects proceed
// concurrently.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*sync.Mutex)}
}

// TryLock attempts to acquire the trigger lock for a project without
// blocking. It returns false when a trigger is already in flight.
func (lm *LockManager) TryLock(projectName string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[projectName]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[projectName] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the trigger lock for a project. Safe to call for a name
// that was never locked.
func (lm *LockManager) Unlock(projectName string) {
	lm.mu.Lock()
	lock := lm.locks[projectName]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
