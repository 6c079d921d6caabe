package control

import (
	"errors"
	"fmt"
)

// Hardware errors. Hardware implementations wrap ErrHardware or
// ErrUnsupported; the Executor adds the rest.
var (
	// ErrHardware is a transient failure talking to the display. Retried.
	ErrHardware = errors.New("control: hardware error")

	// ErrUnsupported is permanent: the tool or the monitor lacks the feature.
	// Never retried.
	ErrUnsupported = errors.New("control: feature unsupported")

	// ErrHardwareUnresponsive is returned once every attempt has failed.
	ErrHardwareUnresponsive = errors.New("control: hardware unresponsive")

	// ErrBusy is returned by TryReadBrightness when a command holds the display.
	ErrBusy = errors.New("control: display busy")

	// ErrNotPresent rejects commands for displays missing from the latest tick.
	ErrNotPresent = errors.New("control: display not present")

	// ErrInvalidValue rejects brightness values outside 0-100.
	ErrInvalidValue = errors.New("control: invalid value")
)

// Command kinds, used in errors, logs and metrics.
const (
	KindPower          = "power"
	KindBrightness     = "brightness"
	KindReadBrightness = "read_brightness"
)

// CommandError describes a failed command against one display.
type CommandError struct {
	UniqueID string
	Kind     string
	Attempts int
	Err      error
}

func (e *CommandError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s on %s failed after %d attempts: %v", e.Kind, e.UniqueID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s on %s failed: %v", e.Kind, e.UniqueID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
