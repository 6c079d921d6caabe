package control

import "context"

// Hardware is the set of control primitives the Executor drives.
//
// Implementations return errors wrapping ErrHardware for transient failures
// and ErrUnsupported for permanent ones.
type Hardware interface {
	// SetPower turns a compositor output on or off.
	SetPower(ctx context.Context, outputID string, on bool) error

	// GetBrightness reads the brightness (0-100) over a DDC/CI bus.
	GetBrightness(ctx context.Context, busPath string) (int, error)

	// SetBrightness writes the brightness (0-100) over a DDC/CI bus.
	SetBrightness(ctx context.Context, busPath string, value int) error
}
