// Package backends wires the wlr-randr and ddcutil adapters into the
// collaborator interfaces used by the correlator and the command executor.
package backends

import (
	"context"

	"github.com/nerrad567/wlddc/internal/backends/ddcutil"
	"github.com/nerrad567/wlddc/internal/backends/wlrrandr"
	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/process"
)

// PowerController switches compositor outputs.
type PowerController interface {
	SetPower(ctx context.Context, outputID string, on bool) error
}

// BrightnessController reads and writes brightness over DDC/CI.
type BrightnessController interface {
	GetBrightness(ctx context.Context, busPath string) (int, error)
	SetBrightness(ctx context.Context, busPath string, value int) error
}

// Hardware joins a power and a brightness controller into control.Hardware.
type Hardware struct {
	Power      PowerController
	Brightness BrightnessController
}

var _ control.Hardware = Hardware{}

// SetPower delegates to the power controller.
func (h Hardware) SetPower(ctx context.Context, outputID string, on bool) error {
	return h.Power.SetPower(ctx, outputID, on)
}

// GetBrightness delegates to the brightness controller.
func (h Hardware) GetBrightness(ctx context.Context, busPath string) (int, error) {
	return h.Brightness.GetBrightness(ctx, busPath)
}

// SetBrightness delegates to the brightness controller.
func (h Hardware) SetBrightness(ctx context.Context, busPath string, value int) error {
	return h.Brightness.SetBrightness(ctx, busPath, value)
}

// Set bundles the production collaborators built from configuration.
type Set struct {
	Outputs  display.OutputSource
	Buses    display.BusSource
	Hardware control.Hardware
}

// New builds wlr-randr and ddcutil adapters sharing one runner.
func New(cfg config.ToolsConfig, runner process.Runner) Set {
	wlr := wlrrandr.New(runner, cfg.WlrRandr)
	ddc := ddcutil.New(runner, cfg.DDCUtil)
	return Set{
		Outputs:  wlr,
		Buses:    ddc,
		Hardware: Hardware{Power: wlr, Brightness: ddc},
	}
}
