package services

import "time"

// Clock supplies the current time to every service that reasons about
// expiry or lock windows. Production wires SystemClock; tests substitute a
// fixed or stepped clock so expiry boundaries can be hit exactly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
