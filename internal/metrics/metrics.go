// Package metrics exposes wlddc's Prometheus collectors.
//
// A Metrics value owns a private registry so tests and one-shot CLI runs
// never touch the global default registry. All recording methods are safe
// on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/wlddc/internal/display"
)

const namespace = "wlddc"

// Display states reported by the displays gauge.
const (
	StatePresent      = "present"
	StateAbsent       = "absent"
	StateUnresponsive = "unresponsive"
)

// Metrics holds every wlddc collector.
type Metrics struct {
	registry *prometheus.Registry

	polls           *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	commands        *prometheus.CounterVec
	commandAttempts *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	rejected        prometheus.Counter
	reconnects      prometheus.Counter
	agentState      prometheus.Gauge
	displays        *prometheus.GaugeVec
	brightness      *prometheus.GaugeVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll ticks by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent enumerating, correlating and publishing one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Hardware commands by kind and result.",
		}, []string{"kind", "result"}),
		commandAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_attempts_total",
			Help:      "Individual hardware calls, including retries.",
		}, []string{"kind"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Hardware command latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"kind"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Inbound MQTT commands rejected before execution.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "MQTT reconnect attempts.",
		}),
		agentState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_state",
			Help:      "Agent connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 shutting down).",
		}),
		displays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "displays",
			Help:      "Known displays by state.",
		}, []string{"state"}),
		brightness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brightness_percent",
			Help:      "Last known brightness per display.",
		}, []string{"display"}),
	}

	m.registry.MustRegister(
		m.polls, m.pollDuration,
		m.commands, m.commandAttempts, m.commandDuration, m.rejected,
		m.reconnects, m.agentState,
		m.displays, m.brightness,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PollCompleted records one poll tick.
func (m *Metrics) PollCompleted(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
	m.pollDuration.Observe(d.Seconds())
}

// ReconnectAttempt records one reconnect.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// AgentState records the agent connection state.
func (m *Metrics) AgentState(state int) {
	if m == nil {
		return
	}
	m.agentState.Set(float64(state))
}

// CommandRejected records an inbound command rejected before execution.
func (m *Metrics) CommandRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// CommandAttempt records one hardware call.
func (m *Metrics) CommandAttempt(kind string) {
	if m == nil {
		return
	}
	m.commandAttempts.WithLabelValues(kind).Inc()
}

// CommandResult records the outcome of one hardware command.
func (m *Metrics) CommandResult(_ string, kind, result string, _ int, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind, result).Inc()
	if d > 0 {
		m.commandDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// Displays replaces the display gauges with the given registry snapshot.
func (m *Metrics) Displays(displays []display.Display) {
	if m == nil {
		return
	}

	counts := map[string]int{StatePresent: 0, StateAbsent: 0, StateUnresponsive: 0}
	m.brightness.Reset()
	for _, d := range displays {
		switch {
		case !d.Present:
			counts[StateAbsent]++
		case d.Unresponsive:
			counts[StateUnresponsive]++
		default:
			counts[StatePresent]++
		}
		if d.Present && d.HasBrightness() && d.Brightness != nil {
			m.brightness.WithLabelValues(d.UniqueID).Set(float64(*d.Brightness))
		}
	}
	for state, n := range counts {
		m.displays.WithLabelValues(state).Set(float64(n))
	}
}
