// Package mqtt provides MQTT client connectivity for wlddc.
//
// This package manages:
//   - One broker session per Client, with Last Will and Testament
//   - Message publishing with QoS and acknowledgment timeouts
//   - Topic subscriptions with panic-safe handlers
//   - Home Assistant discovery/state/command topic builders
//
// # Architecture
//
// wlddc publishes Home Assistant MQTT discovery so every display appears as
// a device with power, brightness and resolution entities:
//
//	wlddc agent ↔ MQTT Broker ↔ Home Assistant
//
// paho's own auto-reconnect is disabled. The agent package runs the
// connection state machine (backoff, re-subscription, discovery republish)
// and dials a fresh Client for every session.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.ConnectOptions{
//	    Will:             &mqtt.Will{Topic: topics.AgentStatus(), Payload: "offline", QoS: 1, Retained: true},
//	    OnConnectionLost: func(err error) { lost <- err },
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.PowerCommandFilter(), 1, handler)
package mqtt
