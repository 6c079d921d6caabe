package display

import (
	"strings"
	"time"
)

// PowerState is the last known power state of a display.
type PowerState string

// Power states.
const (
	PowerUnknown PowerState = "unknown"
	PowerOn      PowerState = "on"
	PowerOff     PowerState = "off"
)

// MatchMethod records which correlation rule bound a display's output to its bus.
type MatchMethod string

// Correlation rules, in priority order.
const (
	MatchOverride MatchMethod = "override"
	MatchSerial   MatchMethod = "serial"
	MatchModel    MatchMethod = "model"
	MatchNone     MatchMethod = "none"
)

// Output is a compositor output as enumerated in one snapshot.
type Output struct {
	ID      string // compositor-local name, e.g. "HDMI-A-1"
	Make    string
	Model   string
	Serial  string
	Enabled bool
	Mode    string // e.g. "3840x2160@59.997Hz", empty if unknown
}

// Bus is a DDC/CI control bus as enumerated in one snapshot.
type Bus struct {
	Path              string // e.g. "/dev/i2c-7"
	Make              string
	Model             string
	Serial            string
	BrightnessCapable bool
}

// Override pins a compositor output to a bus. An empty BusPath pins the
// output as power-only.
type Override struct {
	OutputID   string
	BusPath    string
	Brightness bool
}

// Display is the canonical record for one physical monitor.
//
// Identity fields are produced by Correlate; state fields are maintained by
// the Registry from polls and command results.
type Display struct {
	// Identity
	UniqueID string      `json:"unique_id"`
	OutputID string      `json:"output_id"`
	BusPath  string      `json:"bus_path,omitempty"`
	Make     string      `json:"make"`
	Model    string      `json:"model"`
	Serial   string      `json:"serial,omitempty"`
	Match    MatchMethod `json:"match"`

	// BrightnessCapable is true when a bus is bound, it reports brightness
	// support and no override disabled it. Recomputed on every correlation.
	BrightnessCapable bool `json:"brightness_capable"`

	// State
	Power      PowerState `json:"power"`
	Brightness *int       `json:"brightness,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	// Present is true when the display was enumerated in the latest tick.
	Present bool `json:"present"`

	// Unresponsive is set when the last hardware operation exhausted its retries.
	Unresponsive bool `json:"unresponsive"`

	// BrightnessUnsupported is set permanently (for the current bus binding)
	// once the hardware reports the brightness feature as unsupported.
	BrightnessUnsupported bool `json:"brightness_unsupported"`

	// PowerUnsupported is set for the current output binding once the
	// compositor refuses power control for it.
	PowerUnsupported bool `json:"power_unsupported"`

	LastSeen time.Time `json:"last_seen"`
}

// Available reports whether the display should be shown as online.
func (d Display) Available() bool {
	return d.Present && !d.Unresponsive
}

// HasBrightness reports whether brightness can be read and set.
func (d Display) HasBrightness() bool {
	return d.BusPath != "" && d.BrightnessCapable && !d.BrightnessUnsupported
}

// Name returns a human-friendly label for logs and Home Assistant.
func (d Display) Name() string {
	label := strings.TrimSpace(d.Make + " " + d.Model)
	if label == "" {
		return d.OutputID
	}
	if d.OutputID == "" {
		return label
	}
	return label + " (" + d.OutputID + ")"
}

// Clone returns a deep copy.
func (d Display) Clone() Display {
	if d.Brightness != nil {
		v := *d.Brightness
		d.Brightness = &v
	}
	return d
}

// Ambiguity describes a (make, model) group that could not be matched
// automatically because more than one candidate exists on a side.
type Ambiguity struct {
	Make    string
	Model   string
	Outputs []string
	Buses   []string
}

// Result is the outcome of one correlation pass.
type Result struct {
	// Displays is sorted by UniqueID.
	Displays []Display

	// UnmatchedBuses are buses with no corresponding output.
	UnmatchedBuses []Bus

	Ambiguities []Ambiguity
	Warnings    []string

	// Taken is when the snapshots were enumerated. The Registry uses it to
	// avoid overwriting state written by a command after the snapshot.
	Taken time.Time
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
