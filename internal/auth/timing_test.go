package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ticketwell/authcore/internal/auth"
)

func TestTimingDelay_WaitOnFailure(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 50})

	start := time.Now()
	timing.Wait(false)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestTimingDelay_SuccessSkipsDelay(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 50})

	start := time.Now()
	timing.Wait(true)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestTimingDelay_DelayOnSuccess(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, DelayOnSuccess: true})

	start := time.Now()
	timing.Wait(true)

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestTimingDelay_WaitFromCountsElapsedWork(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100})

	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	timing.WaitFrom(start, false)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 150*time.Millisecond, "elapsed work counts toward the target, not on top of it")
}

func TestTimingDelay_WaitFromNoopWhenTargetExceeded(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 50})

	start := time.Now()
	time.Sleep(100 * time.Millisecond)
	timing.WaitFrom(start, false)

	assert.Less(t, time.Since(start), 120*time.Millisecond)
}
