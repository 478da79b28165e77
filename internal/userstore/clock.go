package userstore

import "time"

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock defers to time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
