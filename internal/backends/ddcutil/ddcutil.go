// Package ddcutil enumerates DDC/CI buses and reads and writes monitor
// brightness (VCP feature 0x10) through the ddcutil tool.
package ddcutil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/process"
)

const (
	// DefaultBinary is used when no path is configured.
	DefaultBinary = "ddcutil"

	// vcpBrightness is the MCCS luminance feature code.
	vcpBrightness = "10"

	busPrefix = "/dev/i2c-"
)

// Source implements display.BusSource and the brightness half of
// control.Hardware.
type Source struct {
	runner process.Runner
	binary string

	// maxByBus remembers the feature maximum reported by the monitor so that
	// writes can be scaled like reads.
	mu       sync.Mutex
	maxByBus map[string]int
}

// New creates a Source. An empty binary means DefaultBinary.
func New(runner process.Runner, binary string) *Source {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Source{runner: runner, binary: binary, maxByBus: make(map[string]int)}
}

// ListBuses runs "ddcutil detect" and returns every bus it reports.
// ddcutil exits non-zero when it finds nothing; that is an empty list.
func (s *Source) ListBuses(ctx context.Context) ([]display.Bus, error) {
	out, err := s.runner.Run(ctx, s.binary, "detect")
	if err != nil {
		if errors.Is(err, process.ErrExit) && noDisplays(out) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s detect: %w", display.ErrEnumeration, s.binary, err)
	}
	return ParseDetect(string(out.Stdout)), nil
}

// GetBrightness reads VCP 0x10 and scales it to 0-100.
func (s *Source) GetBrightness(ctx context.Context, busPath string) (int, error) {
	bus, err := busNumber(busPath)
	if err != nil {
		return 0, err
	}

	out, err := s.runner.Run(ctx, s.binary, "getvcp", vcpBrightness, "--bus", bus, "--brief")
	if err != nil {
		return 0, s.classify(ctx, out, err)
	}

	cur, maxValue, err := ParseBrief(string(out.Stdout))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.maxByBus[busPath] = maxValue
	s.mu.Unlock()

	return scale(cur, maxValue, 100), nil
}

// SetBrightness writes VCP 0x10, scaled to the monitor's range when known.
func (s *Source) SetBrightness(ctx context.Context, busPath string, value int) error {
	bus, err := busNumber(busPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	maxValue, ok := s.maxByBus[busPath]
	s.mu.Unlock()
	raw := value
	if ok {
		raw = scale(value, 100, maxValue)
	}

	out, err := s.runner.Run(ctx, s.binary, "setvcp", vcpBrightness, strconv.Itoa(raw), "--bus", bus)
	if err != nil {
		return s.classify(ctx, out, err)
	}
	return nil
}

// classify maps runner failures onto the control error taxonomy.
func (s *Source) classify(ctx context.Context, out process.Output, err error) error {
	switch {
	case errors.Is(err, process.ErrNotFound):
		return fmt.Errorf("%w: %w", control.ErrUnsupported, err)
	case ctx.Err() != nil:
		return ctx.Err()
	case unsupported(out):
		return fmt.Errorf("%w: %s reports brightness unsupported", control.ErrUnsupported, s.binary)
	default:
		return fmt.Errorf("%w: %w", control.ErrHardware, err)
	}
}

// ParseDetect reads the block listing printed by "ddcutil detect".
//
// Blocks start with "Display N", "Invalid display" or "Phantom display".
// Only "Display N" blocks without a communication failure are brightness
// capable. The make is the long manufacturer name after the PNP id
// ("SAM - Samsung Electric Company"), matching what the compositor reports.
func ParseDetect(text string) []display.Bus {
	var (
		buses []display.Bus
		cur   *display.Bus
	)
	flush := func() {
		if cur != nil && cur.Path != "" {
			buses = append(buses, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case isDisplayHeader(trimmed):
			flush()
			cur = &display.Bus{BrightnessCapable: true}
			continue
		case strings.HasPrefix(trimmed, "Invalid display"), strings.HasPrefix(trimmed, "Phantom display"):
			flush()
			cur = &display.Bus{}
			continue
		}
		if cur == nil {
			continue
		}

		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "ddc communication failed") || strings.Contains(lower, "does not support ddc") {
			cur.BrightnessCapable = false
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "I2C bus":
			cur.Path = value
		case "Mfg id":
			cur.Make = manufacturer(value)
		case "Model":
			cur.Model = value
		case "Serial number":
			cur.Serial = value
		}
	}
	flush()

	return buses
}

// ParseBrief reads "VCP 10 C <current> <max>" as printed by getvcp --brief.
func ParseBrief(text string) (current, maxValue int, err error) {
	fields := strings.Fields(strings.TrimSpace(text))
	for i, f := range fields {
		if f != "C" || i+1 >= len(fields) {
			continue
		}
		current, err = strconv.Atoi(fields[i+1])
		if err != nil {
			break
		}
		maxValue = 100
		if i+2 < len(fields) {
			if m, merr := strconv.Atoi(fields[i+2]); merr == nil && m > 0 {
				maxValue = m
			}
		}
		return current, maxValue, nil
	}
	return 0, 0, fmt.Errorf("%w: unexpected getvcp output %q", control.ErrHardware, strings.TrimSpace(text))
}

func isDisplayHeader(line string) bool {
	rest, ok := strings.CutPrefix(line, "Display ")
	if !ok {
		return false
	}
	_, err := strconv.Atoi(strings.TrimSpace(rest))
	return err == nil
}

// manufacturer turns "SAM - Samsung Electric Company" into the long name,
// falling back to the three letter PNP id.
func manufacturer(v string) string {
	if code, name, ok := strings.Cut(v, " - "); ok {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
		return strings.TrimSpace(code)
	}
	return v
}

func busNumber(busPath string) (string, error) {
	n, ok := strings.CutPrefix(busPath, busPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q is not an i2c bus path", control.ErrUnsupported, busPath)
	}
	if _, err := strconv.Atoi(n); err != nil {
		return "", fmt.Errorf("%w: %q is not an i2c bus path", control.ErrUnsupported, busPath)
	}
	return n, nil
}

func scale(v, from, to int) int {
	if from <= 0 || from == to {
		return v
	}
	return int(math.Round(float64(v) * float64(to) / float64(from)))
}

func noDisplays(out process.Output) bool {
	text := strings.ToLower(string(out.Stdout) + string(out.Stderr))
	return strings.Contains(text, "no displays found")
}

func unsupported(out process.Output) bool {
	text := strings.ToLower(string(out.Stdout) + string(out.Stderr))
	return strings.Contains(text, "unsupported feature") ||
		strings.Contains(text, "not supported") ||
		strings.Contains(text, "unsupported vcp")
}
