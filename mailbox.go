package travelmate

import "sync"

// TokenDescriptor wraps the opaque bearer credential handed from the task
// side to the callback server.
type TokenDescriptor struct {
	Value string
}

// Mailbox is a single-slot holding place for one pending TokenDescriptor.
// The task side stores, the callback route takes. Writers never block.
//
// Single-flight precondition: the design assumes at most one authorization
// flow is outstanding at a time. A second Store before the first Take
// overwrites the earlier descriptor; the identity broker rejects
// overlapping flows so the overwrite cannot happen under correct use.
type Mailbox struct {
	mu      sync.Mutex
	d       TokenDescriptor
	holding bool
}

// Store replaces the current descriptor.
func (m *Mailbox) Store(d TokenDescriptor) {
	m.mu.Lock()
	m.d = d
	m.holding = true
	m.mu.Unlock()
}

// Take reads and clears the descriptor atomically. The second return is
// false when the mailbox is empty. First-read semantics: a descriptor is
// consumed exactly once and cannot be replayed.
func (m *Mailbox) Take() (TokenDescriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.holding {
		return TokenDescriptor{}, false
	}
	d := m.d
	m.d = TokenDescriptor{}
	m.holding = false
	return d, true
}
