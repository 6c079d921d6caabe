package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/mqtt"
)

const waitFor = 3 * time.Second

// published is one message seen by a fakeClient.
type published struct {
	topic    string
	payload  string
	retained bool
}

// fakeClient records publishes and lets tests deliver commands or drop
// the connection.
type fakeClient struct {
	mu          sync.Mutex
	will        mqtt.Will
	onLost      func(error)
	messages    []published
	handlers    map[string]mqtt.MessageHandler
	connected   bool
	closed      bool
	failPublish error
}

func (c *fakeClient) Publish(topic string, payload []byte, _ byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPublish != nil {
		return c.failPublish
	}
	if !c.connected {
		return mqtt.ErrNotConnected
	}
	c.messages = append(c.messages, published{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.closed = true
	return nil
}

// drop simulates the broker going away.
func (c *fakeClient) drop(err error) {
	c.mu.Lock()
	c.connected = false
	onLost := c.onLost
	c.mu.Unlock()
	onLost(err)
}

// deliver invokes the handler subscribed to filter.
func (c *fakeClient) deliver(filter, topic, payload string) error {
	c.mu.Lock()
	h, ok := c.handlers[filter]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for %s", filter)
	}
	return h(topic, []byte(payload))
}

func (c *fakeClient) snapshot() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// last returns the latest payload published on topic.
func (c *fakeClient) last(topic string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i].payload, true
		}
	}
	return "", false
}

// discovery returns the latest payload of every discovery config topic.
func (c *fakeClient) discovery() map[string]string {
	out := map[string]string{}
	for _, m := range c.snapshot() {
		if len(m.topic) > 7 && m.topic[len(m.topic)-7:] == "/config" {
			out[m.topic] = m.payload
		}
	}
	return out
}

// fakeBroker is a Dialer handing out fakeClients.
type fakeBroker struct {
	mu       sync.Mutex
	clients  []*fakeClient
	dialErrs []error // consumed one per dial
	// failFirstPublish makes the first client's publishes fail.
	failFirstPublish error
}

func (b *fakeBroker) dial(_ context.Context, will mqtt.Will, onLost func(error)) (MQTTClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	c := &fakeClient{
		will:      will,
		onLost:    onLost,
		handlers:  map[string]mqtt.MessageHandler{},
		connected: true,
	}
	if len(b.clients) == 0 {
		c.failPublish = b.failFirstPublish
	}
	b.clients = append(b.clients, c)
	return c, nil
}

func (b *fakeBroker) dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *fakeBroker) client(i int) *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.clients) {
		return nil
	}
	return b.clients[i]
}

// fakeSources serves outputs and buses the test can change between ticks.
type fakeSources struct {
	mu      sync.Mutex
	outputs []display.Output
	buses   []display.Bus
	err     error
}

func (s *fakeSources) ListOutputs(context.Context) ([]display.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]display.Output(nil), s.outputs...), nil
}

func (s *fakeSources) ListBuses(context.Context) ([]display.Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]display.Bus(nil), s.buses...), nil
}

func (s *fakeSources) setEnabled(outputID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outputs {
		if s.outputs[i].ID == outputID {
			s.outputs[i].Enabled = enabled
		}
	}
}

func (s *fakeSources) setCapable(path string, capable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buses {
		if s.buses[i].Path == path {
			s.buses[i].BrightnessCapable = capable
		}
	}
}

// fakeHardware implements control.Hardware.
type fakeHardware struct {
	mu         sync.Mutex
	power      map[string]bool
	brightness map[string]int
	setCalls   int
	delay      time.Duration
	entered    chan struct{}
	release    chan struct{}
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{
		power:      map[string]bool{},
		brightness: map[string]int{"/dev/i2c-7": 40},
	}
}

func (h *fakeHardware) SetPower(ctx context.Context, outputID string, on bool) error {
	if err := h.wait(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.power[outputID] = on
	h.setCalls++
	return nil
}

func (h *fakeHardware) GetBrightness(_ context.Context, busPath string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.brightness[busPath]
	if !ok {
		return 0, control.ErrUnsupported
	}
	return v, nil
}

func (h *fakeHardware) SetBrightness(ctx context.Context, busPath string, value int) error {
	if err := h.wait(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.brightness[busPath] = value
	h.setCalls++
	return nil
}

func (h *fakeHardware) wait(ctx context.Context) error {
	if h.entered != nil {
		select {
		case h.entered <- struct{}{}:
		default:
		}
	}
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	return nil
}

func (h *fakeHardware) powerOf(outputID string) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.power[outputID]
	return v, ok
}

func (h *fakeHardware) brightnessOf(bus string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.brightness[bus]
}

func (h *fakeHardware) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setCalls
}

// fakeRecorder counts agent events.
type fakeRecorder struct {
	mu         sync.Mutex
	polls      map[string]int
	reconnects int
	rejected   int
	states     []State
}

func (r *fakeRecorder) PollCompleted(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[result]++
}

func (r *fakeRecorder) ReconnectAttempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
}

func (r *fakeRecorder) AgentState(s int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, State(s))
}

func (r *fakeRecorder) CommandRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

func (r *fakeRecorder) Displays([]display.Display) {}

func (r *fakeRecorder) pollCount(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls[result]
}

func (r *fakeRecorder) reconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnects
}

func (r *fakeRecorder) sawState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if st == s {
			return true
		}
	}
	return false
}

// fixture wires an Agent to fakes. The poll interval is long so ticks only
// happen on Run start and on RequestRefresh.
type fixture struct {
	agent    *Agent
	registry *display.Registry
	sources  *fakeSources
	hw       *fakeHardware
	broker   *fakeBroker
	recorder *fakeRecorder
	topics   mqtt.Topics
	cfg      *config.Config
}

// twoMonitors is the HDMI-A-1 / HDMI-A-2 desk: a DDC-capable LG and a
// Samsung whose bus is absent.
func twoMonitors() *fakeSources {
	return &fakeSources{
		outputs: []display.Output{
			{ID: "HDMI-A-1", Make: "LG Electronics", Model: "LG HDR 4K", Serial: "HNMNB00590", Enabled: true, Mode: "3840x2160@60Hz"},
			{ID: "HDMI-A-2", Make: "Samsung Electric Company", Model: "LS27A600U", Enabled: true, Mode: "2560x1440@75Hz"},
		},
		buses: []display.Bus{
			{Path: "/dev/i2c-7", Make: "LG Electronics", Model: "LG HDR 4K", Serial: "HNMNB00590", BrightnessCapable: true},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test adjust the configuration before the agent is
// built.
func newFixtureWith(t *testing.T, configure func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Agent.PollInterval = time.Hour
	cfg.Agent.DrainTimeout = 2 * time.Second
	cfg.MQTT.Reconnect = config.MQTTReconnectConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
		StableAfter:  time.Hour,
	}
	if configure != nil {
		configure(cfg)
	}

	f := &fixture{
		registry: display.NewRegistry(),
		sources:  twoMonitors(),
		hw:       newFakeHardware(),
		broker:   &fakeBroker{},
		recorder: &fakeRecorder{polls: map[string]int{}},
		topics:   mqtt.NewTopics(cfg.HomeAssistant.DiscoveryPrefix, cfg.HomeAssistant.DeviceID),
		cfg:      cfg,
	}

	executor := control.NewExecutor(f.hw, f.registry, control.Config{Attempts: 1})
	a, err := New(Options{
		Config:    cfg,
		Registry:  f.registry,
		Outputs:   f.sources,
		Buses:     f.sources,
		Commander: executor,
		Dialer:    f.broker.dial,
		Recorder:  f.recorder,
		Version:   "test",
	})
	require.NoError(t, err)
	f.agent = a
	return f
}

// start runs the agent until the test ends and returns a stop function
// that cancels it and waits for Run to return.
func (f *fixture) start(t *testing.T) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	var once sync.Once
	var runErr error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(waitFor):
				runErr = errors.New("agent did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

// waitAnnounced waits until client i has published state for every display.
// Resolution is the last message of each display's announcement.
func (f *fixture) waitAnnounced(t *testing.T, i int) *fakeClient {
	t.Helper()

	var c *fakeClient
	require.Eventually(t, func() bool {
		c = f.broker.client(i)
		if c == nil {
			return false
		}
		for _, d := range f.registry.Snapshot() {
			if _, ok := c.last(f.topics.State(mqtt.ComponentSensor, d.UniqueID, mqtt.EntityResolution)); !ok {
				return false
			}
		}
		return f.agent.Connected()
	}, waitFor, 5*time.Millisecond)
	return c
}

func (f *fixture) waitPolls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.recorder.pollCount(PollOK) >= n
	}, waitFor, 5*time.Millisecond)
}

func sortedTopics(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
