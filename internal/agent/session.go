package agent

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client the agent uses.
// This allows mocking in tests.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic filter.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true while the session is live.
	IsConnected() bool

	// Close disconnects cleanly. The broker does not publish the Will.
	Close() error
}

// Dialer opens one broker session. onLost must be called at most once when
// the established connection drops.
type Dialer func(ctx context.Context, will mqtt.Will, onLost func(error)) (MQTTClient, error)

// MQTTDialer returns a Dialer backed by the paho client.
func MQTTDialer(cfg config.MQTTConfig, logger mqtt.Logger) Dialer {
	return func(ctx context.Context, will mqtt.Will, onLost func(error)) (MQTTClient, error) {
		client, err := mqtt.Connect(ctx, cfg, mqtt.ConnectOptions{
			Will:             &will,
			OnConnectionLost: onLost,
		})
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
		}
		return client, nil
	}
}

// session is one live broker connection.
type session struct {
	client      MQTTClient
	connectedAt time.Time

	// failed receives the first error that ends the session.
	failed   chan error
	failOnce sync.Once
}

func newSession() *session {
	return &session{failed: make(chan error, 1)}
}

// fail ends the session. Only the first error is kept.
func (s *session) fail(err error) {
	s.failOnce.Do(func() {
		s.failed <- err
	})
}
