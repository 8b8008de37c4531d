// Package platform abstracts the environment signals the realtime manager
// reacts to: page/tab visibility and network connectivity.
//
// In a browser these are document visibility and online/offline events; the
// core depends only on this interface so it stays testable and host-agnostic.
package platform

import "sync"

// Signals delivers visibility and connectivity transitions. A nil channel is
// valid and means the signal never fires.
type Signals interface {
	// Visibility emits true when the dashboard becomes visible, false when
	// hidden.
	Visibility() <-chan bool

	// Connectivity emits true when the network comes up, false when it goes
	// away.
	Connectivity() <-chan bool
}

// Manual is a hand-driven Signals implementation for tests and embedders
// that receive visibility/connectivity from their own host environment.
type Manual struct {
	mu         sync.Mutex
	visibility chan bool
	network    chan bool
}

// NewManual creates a Manual with buffered channels so senders never block.
func NewManual() *Manual {
	return &Manual{
		visibility: make(chan bool, 8),
		network:    make(chan bool, 8),
	}
}

func (m *Manual) Visibility() <-chan bool   { return m.visibility }
func (m *Manual) Connectivity() <-chan bool { return m.network }

// SetVisible reports a visibility transition. Dropped if the buffer is full.
func (m *Manual) SetVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.visibility <- visible:
	default:
	}
}

// SetOnline reports a connectivity transition. Dropped if the buffer is full.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.network <- online:
	default:
	}
}
