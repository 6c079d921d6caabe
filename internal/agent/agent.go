package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/influxdb"
	"github.com/nerrad567/wlddc/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Commander executes hardware commands. Satisfied by *control.Executor.
type Commander interface {
	SetPower(ctx context.Context, d display.Display, on bool) (display.Change, error)
	SetBrightness(ctx context.Context, d display.Display, value int) (display.Change, error)
	TryReadBrightness(ctx context.Context, d display.Display) (display.Change, error)
}

// Telemetry receives one state sample per present display per tick.
// Satisfied by *influxdb.Client.
type Telemetry interface {
	WriteDisplayState(s influxdb.DisplayState)
}

// Poll results reported to the Recorder.
const (
	PollOK      = "ok"
	PollSkipped = "skipped"
)

// Recorder receives agent events for metrics. Satisfied by *metrics.Metrics.
type Recorder interface {
	PollCompleted(result string, d time.Duration)
	ReconnectAttempt()
	AgentState(state int)
	CommandRejected()
	Displays(displays []display.Display)
}

type noopRecorder struct{}

func (noopRecorder) PollCompleted(string, time.Duration) {}
func (noopRecorder) ReconnectAttempt()                   {}
func (noopRecorder) AgentState(int)                      {}
func (noopRecorder) CommandRejected()                    {}
func (noopRecorder) Displays([]display.Display)          {}

// Options holds the Agent's collaborators.
type Options struct {
	Config    *config.Config
	Registry  *display.Registry
	Outputs   display.OutputSource
	Buses     display.BusSource
	Commander Commander
	Dialer    Dialer

	// Overrides pin outputs to buses. Replaced at runtime by SetOverrides.
	Overrides []display.Override

	// Identities persists display identities across restarts. Optional.
	Identities display.Repository

	// Telemetry receives state samples. Optional.
	Telemetry Telemetry

	// Recorder receives metrics events. Optional.
	Recorder Recorder

	Logger  Logger
	Version string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Agent keeps the display registry fresh and mirrors it to Home Assistant.
//
// Two loops run for the agent's lifetime: the poll loop, which enumerates
// outputs and buses and applies the correlation, and the connection loop,
// which owns the broker session and its reconnection. Inbound commands are
// queued per display and executed by one worker per display.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Agent struct {
	cfg       *config.Config
	registry  *display.Registry
	outputs   display.OutputSource
	buses     display.BusSource
	commander Commander
	dial      Dialer

	identities display.Repository
	telemetry  Telemetry
	recorder   Recorder
	logger     Logger
	now        func() time.Time

	topics    mqtt.Topics
	discovery discoveryBuilder
	qos       byte
	backoff   *Backoff

	state   atomic.Int32
	running atomic.Bool

	overrides   []display.Override
	overridesMu sync.RWMutex

	// refresh requests an immediate tick.
	refresh chan struct{}

	// lastWarnings suppresses repeating identical correlation warnings.
	lastWarnings map[string]bool

	sess   *session
	sessMu sync.RWMutex

	// publishMu serializes every publish so discovery, availability and
	// state never interleave across goroutines. announced is guarded by it.
	publishMu sync.Mutex
	announced map[string]bool

	queues    map[string]chan command
	queueSize int
	closing   bool
	queuesMu  sync.Mutex
	workers   sync.WaitGroup

	// workCtx outlives Run's ctx so queued commands can drain on shutdown.
	workCtx    context.Context
	workCancel context.CancelFunc
}

// New creates an Agent.
func New(opts Options) (*Agent, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("agent: config is required")
	case opts.Registry == nil:
		return nil, errors.New("agent: registry is required")
	case opts.Outputs == nil || opts.Buses == nil:
		return nil, errors.New("agent: output and bus sources are required")
	case opts.Commander == nil:
		return nil, errors.New("agent: commander is required")
	case opts.Dialer == nil:
		return nil, errors.New("agent: dialer is required")
	}

	cfg := opts.Config
	topics := mqtt.NewTopics(cfg.HomeAssistant.DiscoveryPrefix, cfg.HomeAssistant.DeviceID)

	a := &Agent{
		cfg:        cfg,
		registry:   opts.Registry,
		outputs:    opts.Outputs,
		buses:      opts.Buses,
		commander:  opts.Commander,
		dial:       opts.Dialer,
		identities: opts.Identities,
		telemetry:  opts.Telemetry,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		now:        opts.Now,
		topics:     topics,
		discovery: discoveryBuilder{
			topics:     topics,
			deviceID:   cfg.HomeAssistant.DeviceID,
			deviceName: cfg.HomeAssistant.DeviceName,
			version:    opts.Version,
		},
		qos:          cfg.MQTTQoS(),
		backoff:      NewBackoff(cfg.MQTT.Reconnect),
		overrides:    append([]display.Override(nil), opts.Overrides...),
		refresh:      make(chan struct{}, 1),
		lastWarnings: make(map[string]bool),
		announced:    make(map[string]bool),
		queues:       make(map[string]chan command),
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.recorder == nil {
		a.recorder = noopRecorder{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.queueSize = cfg.Agent.CommandQueue
	if a.queueSize < 1 {
		a.queueSize = 1
	}

	return a, nil
}

// Run starts the agent and blocks until ctx is cancelled, then shuts down.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	a.workCtx, a.workCancel = context.WithCancel(context.WithoutCancel(ctx))
	defer a.workCancel()

	a.loadIdentities(ctx)
	a.tick(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.pollLoop(gctx)
		return nil
	})
	g.Go(func() error {
		a.connectionLoop(gctx)
		return nil
	})
	err := g.Wait()

	a.shutdown()
	return err
}

// State returns the current connection state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Connected reports whether a broker session is live.
func (a *Agent) Connected() bool {
	return a.State() == StateConnected
}

func (a *Agent) setState(s State) {
	prev := State(a.state.Swap(int32(s)))
	if prev == s {
		return
	}
	a.recorder.AgentState(int(s))
	a.logger.Info("agent state changed", "from", prev.String(), "to", s.String())
}

// RequestRefresh asks for an immediate poll. It never blocks; requests made
// while one is pending are merged.
func (a *Agent) RequestRefresh() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// SetOverrides replaces the output-to-bus pins and requests a refresh.
func (a *Agent) SetOverrides(overrides []display.Override) {
	a.overridesMu.Lock()
	a.overrides = append([]display.Override(nil), overrides...)
	a.overridesMu.Unlock()

	a.logger.Info("display overrides updated", "count", len(overrides))
	a.RequestRefresh()
}

func (a *Agent) currentOverrides() []display.Override {
	a.overridesMu.RLock()
	defer a.overridesMu.RUnlock()
	return append([]display.Override(nil), a.overrides...)
}

// =============================================================================
// Connection Management
// =============================================================================

// connectionLoop connects, serves and reconnects until ctx is cancelled.
// A live session is left open on return; shutdown closes it.
func (a *Agent) connectionLoop(ctx context.Context) {
	for {
		a.setState(StateConnecting)

		s, err := a.connect(ctx)
		if err == nil {
			a.setState(StateConnected)
			a.logger.Info("connected to MQTT broker",
				"host", a.cfg.MQTT.Broker.Host, "port", a.cfg.MQTT.Broker.Port)

			if err = a.announce(s); err == nil {
				err = a.serve(ctx, s)
			}
			if ctx.Err() != nil {
				return
			}
			a.backoff.ConnectedFor(a.now().Sub(s.connectedAt))
			a.dropSession(s)
		}
		if ctx.Err() != nil {
			return
		}

		a.setState(StateReconnecting)
		a.recorder.ReconnectAttempt()
		delay := a.backoff.Next()
		a.logger.Warn("MQTT session ended, reconnecting",
			"error", err, "delay", delay, "attempt", a.backoff.Attempts())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect dials the broker and subscribes to the command topics.
func (a *Agent) connect(ctx context.Context) (*session, error) {
	s := newSession()
	will := mqtt.Will{
		Topic:    a.topics.AgentStatus(),
		Payload:  mqtt.PayloadOffline,
		QoS:      a.qos,
		Retained: true,
	}

	client, err := a.dial(ctx, will, func(err error) {
		s.fail(fmt.Errorf("connection lost: %w", err))
	})
	if err != nil {
		return nil, err
	}
	s.client = client

	for _, filter := range []string{a.topics.PowerCommandFilter(), a.topics.BrightnessCommandFilter()} {
		if err := client.Subscribe(filter, a.qos, a.handleMessage); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", filter, err)
		}
	}

	s.connectedAt = a.now()
	a.sessMu.Lock()
	a.sess = s
	a.sessMu.Unlock()
	return s, nil
}

// serve blocks until the session fails or ctx is cancelled.
func (a *Agent) serve(ctx context.Context, s *session) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.failed:
		return err
	}
}

func (a *Agent) currentSession() *session {
	a.sessMu.RLock()
	defer a.sessMu.RUnlock()
	return a.sess
}

// dropSession forgets s and closes its client.
func (a *Agent) dropSession(s *session) {
	a.sessMu.Lock()
	if a.sess == s {
		a.sess = nil
	}
	a.sessMu.Unlock()

	if err := s.client.Close(); err != nil {
		a.logger.Debug("closing MQTT session", "error", err)
	}
}

// =============================================================================
// Publishing
// =============================================================================

// publishLocked sends one retained message. A failure ends the session.
// Caller must hold publishMu.
func (a *Agent) publishLocked(s *session, m message) error {
	if err := s.client.Publish(m.topic, m.payload, a.qos, true); err != nil {
		err = fmt.Errorf("publishing %s: %w", m.topic, err)
		s.fail(err)
		return err
	}
	return nil
}

// announce publishes the agent status, then discovery, availability and
// state for every known display.
func (a *Agent) announce(s *session) error {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	if err := a.publishLocked(s, message{a.topics.AgentStatus(), []byte(mqtt.PayloadOnline)}); err != nil {
		return err
	}

	displays := a.registry.Snapshot()
	for _, d := range displays {
		if err := a.publishDisplayLocked(s, d); err != nil {
			return err
		}
	}

	a.logger.Info("published discovery", "displays", len(displays), "entities", len(a.announced))
	return nil
}

// publishDisplayLocked publishes discovery, availability and full state.
func (a *Agent) publishDisplayLocked(s *session, d display.Display) error {
	msgs, err := a.discovery.discovery(d, a.announced)
	if err != nil {
		a.logger.Error("building discovery", "unique_id", d.UniqueID, "error", err)
		return nil
	}
	msgs = append(msgs, a.discovery.availabilityMessage(d))
	msgs = append(msgs, a.discovery.stateMessages(d, allFields)...)

	for _, m := range msgs {
		if err := a.publishLocked(s, m); err != nil {
			return err
		}
	}
	return nil
}

// publishChanges publishes only what changed. It is a no-op without a
// live session; the next announce carries the full state.
func (a *Agent) publishChanges(changes []display.Change) {
	if len(changes) == 0 {
		return
	}
	s := a.currentSession()
	if s == nil {
		return
	}

	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	for _, c := range changes {
		var msgs []message
		if c.New || c.Has(display.FieldIdentity) {
			if err := a.publishDisplayLocked(s, c.Display); err != nil {
				a.logger.Warn("publishing display", "unique_id", c.UniqueID, "error", err)
				return
			}
			continue
		}
		if c.Has(display.FieldAvailability) {
			msgs = append(msgs, a.discovery.availabilityMessage(c.Display))
		}
		msgs = append(msgs, a.discovery.stateMessages(c.Display, c.Fields)...)

		for _, m := range msgs {
			if err := a.publishLocked(s, m); err != nil {
				a.logger.Warn("publishing state", "unique_id", c.UniqueID, "error", err)
				return
			}
		}
	}
}

// =============================================================================
// Shutdown
// =============================================================================

// shutdown drains commands, marks the agent offline and disconnects.
func (a *Agent) shutdown() {
	a.setState(StateShuttingDown)

	drain := a.cfg.Agent.DrainTimeout
	if !a.closeQueues(drain) {
		a.logger.Warn("command drain timed out, cancelling in-flight commands", "timeout", drain)
	}
	a.workCancel()

	s := a.currentSession()
	if s == nil {
		return
	}
	if s.client.IsConnected() {
		a.publishMu.Lock()
		if err := a.publishLocked(s, message{a.topics.AgentStatus(), []byte(mqtt.PayloadOffline)}); err != nil {
			a.logger.Warn("publishing offline status", "error", err)
		}
		a.publishMu.Unlock()
	}
	a.dropSession(s)
	a.logger.Info("agent stopped")
}
