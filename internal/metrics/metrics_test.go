package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/display"
)

func TestMetrics_CountersAndGauges(t *testing.T) {
	m := New()

	m.PollCompleted("ok", 120*time.Millisecond)
	m.PollCompleted("ok", 80*time.Millisecond)
	m.PollCompleted("skipped", 0)
	m.ReconnectAttempt()
	m.AgentState(2)
	m.CommandRejected()
	m.CommandAttempt("power")
	m.CommandAttempt("power")
	m.CommandResult("dell", "power", "ok", 2, 700*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.agentState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandAttempts.WithLabelValues("power")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("power", "ok")))
}

func TestMetrics_Displays(t *testing.T) {
	m := New()

	m.Displays([]display.Display{
		{UniqueID: "lg", BusPath: "/dev/i2c-7", BrightnessCapable: true, Brightness: display.IntPtr(60), Present: true},
		{UniqueID: "samsung", Present: true, Unresponsive: true},
		{UniqueID: "old", BusPath: "/dev/i2c-9", BrightnessCapable: true, Brightness: display.IntPtr(10)},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.displays.WithLabelValues(StatePresent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.displays.WithLabelValues(StateUnresponsive)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.displays.WithLabelValues(StateAbsent)))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.brightness.WithLabelValues("lg")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.brightness), "absent displays export no brightness")

	m.Displays(nil)
	assert.Equal(t, 0, testutil.CollectAndCount(m.brightness))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.displays.WithLabelValues(StatePresent)))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PollCompleted("ok", time.Second)
		m.ReconnectAttempt()
		m.AgentState(1)
		m.CommandRejected()
		m.CommandAttempt("power")
		m.CommandResult("x", "power", "ok", 1, time.Second)
		m.Displays(nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ReconnectAttempt()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "wlddc_reconnects_total 1"))
	assert.Contains(t, string(body), "go_goroutines")
}
