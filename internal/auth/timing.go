package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for response-time equalization
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random jitter range in milliseconds
	DelayOnSuccess bool // If true, delay successful logins too
}

// TimingDelay equalizes how long authentication failures take so that
// "account not found", "wrong password" and "locked out" are not
// distinguishable by response time.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// targetDelay is base + jitter. Jitter comes from crypto/rand so an
// observer cannot model the delay distribution from a PRNG seed.
func (td *TimingDelay) targetDelay() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err == nil {
			jitter := binary.BigEndian.Uint64(buf[:]) % uint64(td.config.RandomDelayMs)
			delay += time.Duration(jitter) * time.Millisecond
		}
	}
	return delay
}

// Wait sleeps for the configured delay. Successful operations skip the
// delay unless DelayOnSuccess is set.
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	time.Sleep(td.targetDelay())
}

// WaitFrom sleeps only for the remainder of the target delay, counting
// time already spent since startTime. Work the handler already did
// (lookups, hashing) counts toward the target instead of stacking on it.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	if remaining := td.targetDelay() - time.Since(startTime); remaining > 0 {
		time.Sleep(remaining)
	}
}
