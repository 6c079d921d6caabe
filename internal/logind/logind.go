// Package logind watches systemd-logind for resume from suspend.
//
// Monitors often come back from suspend with a different power state, or
// re-enumerate on a different DDC/CI bus. The agent subscribes here and
// requests an immediate poll when the system wakes up rather than waiting
// for the next tick.
package logind

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// logind D-Bus names.
const (
	managerPath      = dbus.ObjectPath("/org/freedesktop/login1")
	managerInterface = "org.freedesktop.login1.Manager"
	sleepMember      = "PrepareForSleep"
	sleepSignal      = managerInterface + "." + sleepMember
)

// signalBuffer is the D-Bus signal channel size.
const signalBuffer = 8

// Logger is the logging interface used by the Watcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Watcher calls a callback after every resume from suspend.
type Watcher struct {
	onResume func()
	logger   Logger
}

// NewWatcher creates a Watcher. logger may be nil.
func NewWatcher(onResume func(), logger Logger) *Watcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watcher{onResume: onResume, logger: logger}
}

// Run connects to the system bus and blocks until ctx is cancelled.
// It returns an error only if the subscription cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(managerPath),
		dbus.WithMatchInterface(managerInterface),
		dbus.WithMatchMember(sleepMember),
	); err != nil {
		return fmt.Errorf("subscribing to %s: %w", sleepSignal, err)
	}

	ch := make(chan *dbus.Signal, signalBuffer)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	w.logger.Info("watching for resume from suspend")
	w.watch(ctx, ch)
	return nil
}

// watch dispatches signals until ctx is cancelled or ch is closed.
func (w *Watcher) watch(ctx context.Context, ch <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				w.logger.Warn("system bus connection closed")
				return
			}
			sleeping, ok := sleepState(sig)
			if !ok {
				continue
			}
			if sleeping {
				w.logger.Info("system suspending")
				continue
			}
			w.logger.Info("system resumed")
			w.onResume()
		}
	}
}

// sleepState decodes a PrepareForSleep signal. ok is false for any other
// signal or a malformed body.
func sleepState(sig *dbus.Signal) (sleeping, ok bool) {
	if sig == nil || sig.Name != sleepSignal || len(sig.Body) != 1 {
		return false, false
	}
	sleeping, ok = sig.Body[0].(bool)
	return sleeping, ok
}
