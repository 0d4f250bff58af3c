package common

import "sync"

// ProtectedBool is a boolean protected by RW lock
type ProtectedBool struct {
	m     sync.RWMutex
	value bool
}

// Set sets the value
func (b *ProtectedBool) Set(nvalue bool) {
	b.m.Lock()
	defer b.m.Unlock()
	b.value = nvalue
}

// Get gets the value
func (b *ProtectedBool) Get() bool {
	b.m.RLock()
	defer b.m.RUnlock()
	return b.value
}

// SetIfNot sets the value to nvalue and returns true iff the current value is
// not already nvalue. Used for idempotent one-way flips such as session close.
func (b *ProtectedBool) SetIfNot(nvalue bool) bool {
	b.m.Lock()
	defer b.m.Unlock()
	if b.value == nvalue {
		return false
	}
	b.value = nvalue
	return true
}
