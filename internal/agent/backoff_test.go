package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

func reconnectConfig(jitter float64) config.MQTTReconnectConfig {
	return config.MQTTReconnectConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     120 * time.Second,
		Multiplier:   2,
		Jitter:       jitter,
		StableAfter:  30 * time.Second,
	}
}

func TestBackoff_ExponentialWithoutJitter(t *testing.T) {
	b := NewBackoff(reconnectConfig(0))

	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second,
		80 * time.Second, 120 * time.Second, 120 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i)
	}
}

func TestBackoff_MonotonicAndBounded(t *testing.T) {
	for run := 0; run < 20; run++ {
		b := NewBackoff(reconnectConfig(0.5))

		var last time.Duration
		for i := 0; i < 30; i++ {
			d := b.Next()
			require.GreaterOrEqual(t, d, last, "delay decreased at attempt %d", i)
			require.LessOrEqual(t, d, 120*time.Second)
			require.Positive(t, d)
			last = d
		}
		assert.Equal(t, 120*time.Second, last, "long run should settle at the cap")
	}
}

func TestBackoff_JitterWithinWindow(t *testing.T) {
	for run := 0; run < 50; run++ {
		b := NewBackoff(reconnectConfig(0.25))

		var last time.Duration
		for i := 0; i < 8; i++ {
			low, high := b.Bounds()
			d := b.Next()

			// The non-decreasing clamp may lift a delay above its own window
			// floor but never above the window ceiling.
			floor := low
			if last > floor {
				floor = last
			}
			assert.GreaterOrEqual(t, d, floor, "attempt %d", i)
			assert.LessOrEqual(t, d, high, "attempt %d", i)
			last = d
		}
	}
}

func TestBackoff_ResetOnlyAfterStableConnection(t *testing.T) {
	b := NewBackoff(reconnectConfig(0))
	b.Next()
	b.Next()
	require.Equal(t, 2, b.Attempts())

	b.ConnectedFor(2 * time.Second)
	assert.Equal(t, 2, b.Attempts(), "a short session must not reset")
	assert.Equal(t, 20*time.Second, b.Next())

	b.ConnectedFor(30 * time.Second)
	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, 5*time.Second, b.Next(), "clamp is cleared by reset")
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(config.MQTTReconnectConfig{Jitter: 1.5})

	assert.Equal(t, defaultInitialDelay, b.Next())
	assert.Equal(t, defaultInitialDelay*2, b.Next())
}

func TestBackoff_MaxBelowInitial(t *testing.T) {
	b := NewBackoff(config.MQTTReconnectConfig{InitialDelay: time.Minute, MaxDelay: time.Second, Multiplier: 3})

	assert.Equal(t, time.Minute, b.Next())
	assert.Equal(t, time.Minute, b.Next())
}
