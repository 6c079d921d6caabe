// Package wlrrandr enumerates and powers Wayland outputs through wlr-randr.
package wlrrandr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/process"
)

// DefaultBinary is used when no path is configured.
const DefaultBinary = "wlr-randr"

// Mode lines come in two shapes depending on the wlr-randr version:
//
//	3840x2160 px, 59.997002 Hz (preferred, current)
//	3840x2160@59.997002 Hz (preferred, current)
var modePattern = regexp.MustCompile(`^(\d+x\d+)(?:\s*px,\s*|@)([\d.]+)\s*Hz`)

// Source implements display.OutputSource and the power half of
// control.Hardware.
type Source struct {
	runner process.Runner
	binary string
}

// New creates a Source. An empty binary means DefaultBinary.
func New(runner process.Runner, binary string) *Source {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Source{runner: runner, binary: binary}
}

// ListOutputs returns every output the compositor reports.
func (s *Source) ListOutputs(ctx context.Context) ([]display.Output, error) {
	out, err := s.runner.Run(ctx, s.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", display.ErrEnumeration, s.binary, err)
	}
	return Parse(string(out.Stdout)), nil
}

// SetPower enables or disables an output.
func (s *Source) SetPower(ctx context.Context, outputID string, on bool) error {
	flag := "--off"
	if on {
		flag = "--on"
	}
	_, err := s.runner.Run(ctx, s.binary, "--output", outputID, flag)
	if err == nil {
		return nil
	}
	if errors.Is(err, process.ErrNotFound) {
		return fmt.Errorf("%w: %w", control.ErrUnsupported, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", control.ErrHardware, err)
}

// Parse reads wlr-randr's human-readable listing.
//
// Each output starts on an unindented line whose first word is the connector
// name; indented "Key: value" lines follow. Only the mode flagged "current"
// is kept.
func Parse(text string) []display.Output {
	var (
		outputs []display.Output
		cur     *display.Output
	)
	flush := func() {
		if cur != nil {
			outputs = append(outputs, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			flush()
			cur = &display.Output{ID: strings.Fields(line)[0]}
			continue
		}
		if cur == nil {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if key, value, ok := strings.Cut(trimmed, ":"); ok {
			value = strings.TrimSpace(value)
			switch key {
			case "Enabled":
				cur.Enabled = strings.EqualFold(value, "yes")
				continue
			case "Make":
				cur.Make = cleanValue(value)
				continue
			case "Model":
				cur.Model = cleanValue(value)
				continue
			case "Serial":
				cur.Serial = cleanValue(value)
				continue
			}
		}

		if strings.Contains(trimmed, "current") {
			if m := modePattern.FindStringSubmatch(trimmed); m != nil {
				cur.Mode = formatMode(m[1], m[2])
			}
		}
	}
	flush()

	return outputs
}

// cleanValue drops placeholder values some compositors report for missing EDID fields.
func cleanValue(v string) string {
	switch strings.ToLower(v) {
	case "(null)", "unknown", "":
		return ""
	}
	return v
}

// formatMode renders "3840x2160" and "59.997002" as "3840x2160@59.997Hz".
func formatMode(size, refresh string) string {
	hz, err := strconv.ParseFloat(refresh, 64)
	if err != nil {
		return size + "@" + refresh + "Hz"
	}
	rounded := math.Round(hz*1000) / 1000
	return size + "@" + strconv.FormatFloat(rounded, 'f', -1, 64) + "Hz"
}
