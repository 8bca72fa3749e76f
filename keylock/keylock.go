// Package keylock provides mutual exclusion scoped to string keys.
package keylock

import "sync"

// A Map hands out one mutex per key, so callers can serialize work on a
// single entity (a comment, an author/post pair) without a global lock.
// The zero value is ready to use.
type Map struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key and returns the matching unlock func.
//
//	defer locks.Lock(id)()
func (m *Map) Lock(key string) func() {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
