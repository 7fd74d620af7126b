package main

import "context"

// Signal is a single-slot wake notification.  Any number of Notify calls made
// while a wake is pending collapse into that one wake; a Notify made after
// the waiter consumed the slot is kept for the next Wait.  There is exactly
// one consumer.
//
// Notify is safe to call from the edge watcher: it never blocks and never
// allocates.
type Signal struct {
    ch chan struct{}
}

// NewSignal returns a signal with no pending wake.
func NewSignal() *Signal {
    return &Signal{ch: make(chan struct{}, 1)}
}

// Notify arms the signal.  It reports whether the call created a new pending
// wake (false means it coalesced into one already pending).
func (s *Signal) Notify() bool {
    select {
    case s.ch <- struct{}{}:
        return true
    default:
        return false
    }
}

// Wait blocks until the signal is armed, consuming the wake, or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
    select {
    case <-s.ch:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

// Pending reports whether a wake is waiting to be consumed.
func (s *Signal) Pending() bool {
    return len(s.ch) == 1
}
