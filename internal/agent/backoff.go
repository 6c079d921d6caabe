package agent

import (
	"math/rand"
	"sync"
	"time"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

// Backoff defaults, used when the configuration leaves a field at zero.
const (
	defaultInitialDelay = 5 * time.Second
	defaultMaxDelay     = 120 * time.Second
	defaultMultiplier   = 2.0
	defaultStableAfter  = 30 * time.Second
)

// Backoff computes reconnect delays.
//
// The base delay grows exponentially from the initial delay up to the cap.
// Jitter only ever shortens a delay, picking uniformly from
// [base*(1-jitter), base]. Each delay is clamped to be no shorter than the
// previous one, so a run of failures never backs off less over time.
//
// The attempt counter resets only when a connection stayed up for at least
// StableAfter; a connection that drops right after the handshake keeps
// backing off.
type Backoff struct {
	mu sync.Mutex

	initial     time.Duration
	max         time.Duration
	multiplier  float64
	jitter      float64
	stableAfter time.Duration

	attempts int
	last     time.Duration
	rng      *rand.Rand
}

// NewBackoff creates a Backoff from the reconnect configuration.
func NewBackoff(cfg config.MQTTReconnectConfig) *Backoff {
	b := &Backoff{
		initial:     cfg.InitialDelay,
		max:         cfg.MaxDelay,
		multiplier:  cfg.Multiplier,
		jitter:      cfg.Jitter,
		stableAfter: cfg.StableAfter,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // Jitter does not need crypto randomness
	}
	if b.initial <= 0 {
		b.initial = defaultInitialDelay
	}
	if b.max <= 0 {
		b.max = defaultMaxDelay
	}
	if b.max < b.initial {
		b.max = b.initial
	}
	if b.multiplier < 1 {
		b.multiplier = defaultMultiplier
	}
	if b.jitter < 0 || b.jitter >= 1 {
		b.jitter = 0
	}
	if b.stableAfter <= 0 {
		b.stableAfter = defaultStableAfter
	}
	return b
}

// base returns the un-jittered delay for the current attempt.
func (b *Backoff) base() time.Duration {
	d := float64(b.initial)
	for i := 0; i < b.attempts; i++ {
		d *= b.multiplier
		if d >= float64(b.max) {
			return b.max
		}
	}
	return time.Duration(d)
}

// Next returns the delay before the next attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	base := b.base()
	d := base
	if b.jitter > 0 {
		low := float64(base) * (1 - b.jitter)
		d = time.Duration(low + b.rng.Float64()*(float64(base)-low))
	}
	if d < b.last {
		d = b.last
	}
	if d > b.max {
		d = b.max
	}

	b.last = d
	b.attempts++
	return d
}

// Bounds returns the jitter window of the next delay without advancing.
func (b *Backoff) Bounds() (low, high time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	high = b.base()
	low = time.Duration(float64(high) * (1 - b.jitter))
	return low, high
}

// ConnectedFor reports how long the last session lasted. Sessions of at
// least StableAfter reset the backoff.
func (b *Backoff) ConnectedFor(d time.Duration) {
	if d >= b.stableAfter {
		b.Reset()
	}
}

// Reset returns the backoff to its initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
	b.last = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
