package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyMutex serializes operations per appointment key. Locks are created on
// first use and kept for the process lifetime; the per-appointment footprint
// is one mutex, which is cheaper than the bookkeeping needed to reap them.
type keyMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *keyMutex) get(key uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock acquires the mutex for key.
func (k *keyMutex) Lock(key uuid.UUID) {
	k.get(key).Lock()
}

// Unlock releases the mutex for key.
func (k *keyMutex) Unlock(key uuid.UUID) {
	k.get(key).Unlock()
}
