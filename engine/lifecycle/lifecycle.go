// Package lifecycle provides the one-shot termination signal carried by every destructible object.
package lifecycle

import "github.com/roomsync/roomsync/engine/rsutils"

// Signal fires exactly once. Listeners run in subscription order.
//
// Signal is not goroutine-safe: it belongs to the loop that owns the object.
type Signal struct {
	fired     bool
	firing    bool
	listeners []*listener
}

type listener struct {
	f       func()
	removed bool
}

// Subscription detaches a listener from its signal
type Subscription struct {
	l *listener
}

// Cancel stops the listener from being called. Cancelling twice is fine.
func (s Subscription) Cancel() {
	if s.l != nil {
		s.l.removed = true
	}
}

// Fired returns if the signal has fired (or is firing)
func (s *Signal) Fired() bool {
	return s.fired
}

// OnFire registers a listener, a listener registered after the signal fired is called immediately
func (s *Signal) OnFire(f func()) Subscription {
	l := &listener{f: f}
	if s.fired && !s.firing {
		rsutils.RunPanicless(f)
		return Subscription{l}
	}
	s.listeners = append(s.listeners, l)
	return Subscription{l}
}

// Fire fires the signal, returns false if it already fired
func (s *Signal) Fire() bool {
	if s.fired {
		return false
	}
	s.fired = true
	s.firing = true
	// listeners may subscribe while firing, so iterate by index
	for i := 0; i < len(s.listeners); i++ {
		l := s.listeners[i]
		if !l.removed {
			rsutils.RunPanicless(l.f)
		}
	}
	s.listeners = nil
	s.firing = false
	return true
}

// Terminable is implemented by objects carrying a termination signal
type Terminable interface {
	Terminated() *Signal
}
