package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "agent:\n  poll_interval: 30s\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop() //nolint:errcheck // Test cleanup

	content := "displays:\n  overrides:\n    - output: HDMI-A-1\n      bus: /dev/i2c-7\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if len(cfg.Displays.Overrides) != 1 || cfg.Displays.Overrides[0].Output != "HDMI-A-1" {
			t.Errorf("reloaded overrides = %+v", cfg.Displays.Overrides)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcher_InvalidReloadIgnored(t *testing.T) {
	path := writeConfig(t, "agent:\n  poll_interval: 30s\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop() //nolint:errcheck // Test cleanup

	if err := os.WriteFile(path, []byte("mqtt:\n  qos: 9\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Errorf("invalid config delivered: %+v", cfg.MQTT)
	case <-time.After(1 * time.Second):
	}
}

func TestNewWatcher_RequiresArguments(t *testing.T) {
	if _, err := NewWatcher("", func(*Config) {}, nil); err == nil {
		t.Error("NewWatcher(\"\") expected error")
	}
	if _, err := NewWatcher("/tmp/x.yaml", nil, nil); err == nil {
		t.Error("NewWatcher(nil callback) expected error")
	}
}
