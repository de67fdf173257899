package session

import "sync"

// LockTable hands out one mutex per session ID so the turn engine and the
// reaper never mutate the same session concurrently. The engine holds the
// lock across each state transition; the reaper uses TryLock and skips
// sessions the engine is actively driving.
//
// All methods are safe for concurrent use.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *LockTable) get(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// Lock blocks until the session's lock is held.
func (t *LockTable) Lock(id string) {
	t.get(id).Lock()
}

// TryLock acquires the session's lock without blocking.
func (t *LockTable) TryLock(id string) bool {
	return t.get(id).TryLock()
}

// Unlock releases the session's lock.
func (t *LockTable) Unlock(id string) {
	t.get(id).Unlock()
}

// Remove drops the lock entry once a session is terminal. Callers must not
// hold the lock.
func (t *LockTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, id)
}
