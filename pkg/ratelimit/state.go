// Package ratelimit paces requests to the RePORTER API.
//
// The API asks clients to send no more than one request per second and to run
// large jobs off-hours. The Pacer enforces a minimum interval between requests,
// either in-process or, when given a Redis client, across every process sharing
// that Redis.
package ratelimit

import (
	"time"
)

// RedisKeySlot is the key claimed with SET NX PX for each request slot.
const RedisKeySlot = "reporter:pacer:slot"

// DefaultInterval is the minimum spacing between requests recommended by the
// RePORTER API documentation.
const DefaultInterval = 1 * time.Second

// State is the in-process pacing state.
type State struct {
	// LastRequest is when the previous request slot was granted.
	LastRequest time.Time

	// Interval is the minimum spacing between slots.
	Interval time.Duration
}

// NextAllowed returns the earliest time the next slot may be granted.
func (s *State) NextAllowed() time.Time {
	if s.LastRequest.IsZero() {
		return time.Time{}
	}
	return s.LastRequest.Add(s.Interval)
}

// WaitDuration returns how long a request arriving at now must wait.
// Returns 0 if a slot is free.
func (s *State) WaitDuration(now time.Time) time.Duration {
	next := s.NextAllowed()
	if next.IsZero() {
		return 0
	}
	d := next.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
