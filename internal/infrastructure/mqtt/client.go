package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for a single broker session.
//
// Unlike a long-lived auto-reconnecting client, a Client represents exactly
// one connection: when the connection is lost the OnConnectionLost callback
// fires once and the Client is finished. The agent owns reconnection, backoff
// and re-subscription, so session state never outlives the socket it was
// created on.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	connected bool
	connMu    sync.RWMutex

	onLost   func(err error)
	lostOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked from the paho router goroutine and should return
// quickly; long work must be handed off.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Will is the Last Will and Testament registered with the broker.
type Will struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// ConnectOptions carries per-session settings that are not part of the
// static configuration.
type ConnectOptions struct {
	// Will is published by the broker if the session ends without a clean
	// disconnect. Optional.
	Will *Will

	// OnConnectionLost is invoked at most once, from a paho goroutine, when
	// the established connection drops. Optional.
	OnConnectionLost func(err error)
}

// Connect establishes a session with the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS, keepalive)
//  2. Registers the Last Will, if provided
//  3. Attempts the connection, bounded by ctx and the connect timeout
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: wraps ErrConnectionFailed if the handshake fails or times out
func Connect(ctx context.Context, cfg config.MQTTConfig, opts ConnectOptions) (*Client, error) {
	pahoOpts := buildClientOptions(cfg)
	if opts.Will != nil {
		configureLWT(pahoOpts, *opts.Will)
	}

	c := &Client{
		cfg:     cfg,
		options: pahoOpts,
		onLost:  opts.OnConnectionLost,
	}

	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(pahoOpts)
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-afterConnectTimeout():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.lostOnce.Do(func() {
		if c.onLost != nil {
			c.onLost(err)
		}
	})
}

// Close disconnects from the broker.
//
// Pending publishes get the quiesce period to complete. A clean disconnect
// suppresses the Last Will, so callers publish their own offline marker
// before closing. OnConnectionLost is not invoked by Close.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.lostOnce.Do(func() {})
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets a logger for handler errors and panics.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, recovering panics so one bad message cannot take
// down the paho router.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error",
				"topic", topic,
				"error", err,
			)
		}
	}
}
