package display

import (
	"context"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

// OutputSource enumerates compositor outputs.
// Implementations return an error wrapping ErrEnumeration when the
// compositor is unreachable.
type OutputSource interface {
	ListOutputs(ctx context.Context) ([]Output, error)
}

// BusSource enumerates DDC/CI buses.
// Implementations return an error wrapping ErrEnumeration when the bus
// tooling cannot be queried.
type BusSource interface {
	ListBuses(ctx context.Context) ([]Bus, error)
}

// OverridesFromConfig converts configured pins into correlator overrides.
func OverridesFromConfig(cfg []config.OverrideConfig) []Override {
	if len(cfg) == 0 {
		return nil
	}
	out := make([]Override, 0, len(cfg))
	for _, o := range cfg {
		out = append(out, Override{
			OutputID:   o.Output,
			BusPath:    o.BusPath(),
			Brightness: o.Brightness(),
		})
	}
	return out
}
