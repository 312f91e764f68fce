// Package shell models the host window state the viewer reacts to.
package shell

import "sync"

// State holds the window lock flag and notifies listeners on every change.
type State struct {
	mu        sync.Mutex
	locked    bool
	listeners []func(locked bool)
}

func NewState(locked bool) *State {
	return &State{locked: locked}
}

func (s *State) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// OnChange registers fn and calls it once immediately with the current
// value.
func (s *State) OnChange(fn func(locked bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	locked := s.locked
	s.mu.Unlock()

	fn(locked)
}

// SetLocked stores the flag and notifies listeners when it changed.
func (s *State) SetLocked(locked bool) {
	s.mu.Lock()
	if s.locked == locked {
		s.mu.Unlock()
		return
	}
	s.locked = locked
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, locked)
}

// Toggle flips the flag and returns the new value. Concurrent toggles each
// apply.
func (s *State) Toggle() bool {
	s.mu.Lock()
	s.locked = !s.locked
	next := s.locked
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, next)
	return next
}

// snapshotLocked copies the listeners; s.mu must be held.
func (s *State) snapshotLocked() []func(bool) {
	return append([]func(bool){}, s.listeners...)
}

func notify(listeners []func(bool), locked bool) {
	for _, fn := range listeners {
		fn(locked)
	}
}
