// Package agent mirrors the display registry to Home Assistant over MQTT.
//
// The Agent owns one broker session at a time and reconnects with a
// jittered exponential backoff when the session ends. A poll loop keeps the
// registry fresh regardless of the connection, publishing only what changed
// while a session is live. On every (re)connect the agent announces itself
// online and republishes discovery, availability and state for every known
// display.
//
// State machine:
//
//	DISCONNECTED ──► CONNECTING ──► CONNECTED
//	                     ▲              │
//	                     │              ▼
//	                     └──────── RECONNECTING
//
//	any ──(ctx cancelled)──► SHUTTING_DOWN
//
// Commands received on the switch and number command topics are parsed on
// the MQTT router goroutine and queued per display. One worker per display
// executes them through the Commander, so a slow monitor never delays
// another.
package agent
