// wlddc - Wayland display and DDC/CI bridge for Home Assistant.
//
// wlddc correlates compositor outputs (wlr-randr) with DDC/CI buses
// (ddcutil) so that every physical monitor gets one stable identity, then
// exposes power, brightness and resolution to Home Assistant over MQTT
// discovery. The same correlation backs a handful of one-shot commands for
// scripting and troubleshooting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so the agent can drain and publish offline.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
