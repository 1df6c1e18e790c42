package services

import "sync"

// keyedMutex hands out one RW lock per listing id. Chunk writes share the
// read side; finalize, update and delete take the write side, so a write
// that passed its state check lands before the state can change. Entries
// are dropped once no goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.RWMutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refLock)}
}

// Lock blocks until the write lock for id is held and returns its release
// func.
func (k *keyedMutex) Lock(id int64) (unlock func()) {
	l := k.acquire(id)
	l.Lock()
	return func() {
		l.Unlock()
		k.release(id, l)
	}
}

// RLock blocks until a read lock for id is held and returns its release
// func.
func (k *keyedMutex) RLock(id int64) (unlock func()) {
	l := k.acquire(id)
	l.RLock()
	return func() {
		l.RUnlock()
		k.release(id, l)
	}
}

func (k *keyedMutex) acquire(id int64) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) release(id int64, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
