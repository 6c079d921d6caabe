package ddcutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/process"
)

const detectSample = `Display 1
   I2C bus:  /dev/i2c-7
   DRM connector:           card1-HDMI-A-1
   EDID synopsis:
      Mfg id:               SAM - Samsung Electric Company
      Model:                LU28R55
      Product code:         3910  (0x0f46)
      Serial number:        HNMNB00590
      Binary serial number: 1129926733 (0x4358334d)
      Manufacture year:     2021,  Week: 34
   VCP version:         2.0

Invalid display
   I2C bus:  /dev/i2c-4
   DRM connector:           card1-eDP-1
   EDID synopsis:
      Mfg id:               BOE - BOE
      Model:
      Serial number:
   DDC communication failed
   This is an eDP laptop display. Laptop displays do not support DDC/CI.

Display 2
   I2C bus:  /dev/i2c-3
   DRM connector:           card1-DP-2
   EDID synopsis:
      Mfg id:               DEL
      Model:                DELL U2720Q
      Serial number:
   VCP version:         2.1
`

type fakeRunner struct {
	outputs []process.Output
	errs    []error
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, binary string, args ...string) (process.Output, error) {
	i := len(f.calls)
	f.calls = append(f.calls, append([]string{binary}, args...))
	var (
		out process.Output
		err error
	)
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return out, err
}

func stdout(s string) process.Output {
	return process.Output{Stdout: []byte(s)}
}

func TestParseDetect(t *testing.T) {
	got := ParseDetect(detectSample)

	require.Len(t, got, 3)
	assert.Equal(t, display.Bus{
		Path: "/dev/i2c-7", Make: "Samsung Electric Company", Model: "LU28R55",
		Serial: "HNMNB00590", BrightnessCapable: true,
	}, got[0])
	assert.Equal(t, display.Bus{Path: "/dev/i2c-4", Make: "BOE"}, got[1])
	assert.Equal(t, display.Bus{Path: "/dev/i2c-3", Make: "DEL", Model: "DELL U2720Q", BrightnessCapable: true}, got[2])
}

func TestParseDetect_IgnoresBlocksWithoutBus(t *testing.T) {
	assert.Empty(t, ParseDetect("Display 1\n   VCP version: 2.0\n"))
	assert.Empty(t, ParseDetect("No displays found.\n"))
}

func TestParseBrief(t *testing.T) {
	tests := []struct {
		in      string
		cur     int
		max     int
		wantErr bool
	}{
		{"VCP 10 C 60 100\n", 60, 100, false},
		{"VCP 10 C 30 50", 30, 50, false},
		{"VCP 10 C 75", 75, 100, false},
		{"VCP 10 ERR", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cur, maxValue, err := ParseBrief(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, control.ErrHardware)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cur, cur)
			assert.Equal(t, tt.max, maxValue)
		})
	}
}

func TestListBuses(t *testing.T) {
	r := &fakeRunner{outputs: []process.Output{stdout(detectSample)}}

	got, err := New(r, "").ListBuses(context.Background())

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, [][]string{{"ddcutil", "detect"}}, r.calls)
}

func TestListBuses_NoDisplays(t *testing.T) {
	r := &fakeRunner{
		outputs: []process.Output{stdout("No displays found.\n")},
		errs:    []error{&process.ExitError{Binary: "ddcutil", Code: 1}},
	}

	got, err := New(r, "").ListBuses(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListBuses_Failure(t *testing.T) {
	r := &fakeRunner{errs: []error{fmt.Errorf("%w: ddcutil", process.ErrNotFound)}}

	_, err := New(r, "").ListBuses(context.Background())

	assert.ErrorIs(t, err, display.ErrEnumeration)
}

func TestBrightnessScaling(t *testing.T) {
	r := &fakeRunner{outputs: []process.Output{stdout("VCP 10 C 25 50"), {}}}
	s := New(r, "")

	v, err := s.GetBrightness(context.Background(), "/dev/i2c-7")
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	require.NoError(t, s.SetBrightness(context.Background(), "/dev/i2c-7", 80))
	assert.Equal(t, [][]string{
		{"ddcutil", "getvcp", "10", "--bus", "7", "--brief"},
		{"ddcutil", "setvcp", "10", "40", "--bus", "7"},
	}, r.calls)
}

func TestSetBrightness_UnknownRangeIsUnscaled(t *testing.T) {
	r := &fakeRunner{}
	require.NoError(t, New(r, "").SetBrightness(context.Background(), "/dev/i2c-3", 65))
	assert.Equal(t, [][]string{{"ddcutil", "setvcp", "10", "65", "--bus", "3"}}, r.calls)
}

func TestBrightnessErrors(t *testing.T) {
	tests := []struct {
		name string
		out  process.Output
		err  error
		want error
	}{
		{
			name: "feature unsupported",
			out:  process.Output{Stderr: []byte("Unsupported feature code: 0x10")},
			err:  &process.ExitError{Binary: "ddcutil", Code: 1},
			want: control.ErrUnsupported,
		},
		{
			name: "bus not responding",
			out:  process.Output{Stderr: []byte("DDC communication failed")},
			err:  &process.ExitError{Binary: "ddcutil", Code: 1},
			want: control.ErrHardware,
		},
		{
			name: "tool missing",
			err:  fmt.Errorf("%w: ddcutil", process.ErrNotFound),
			want: control.ErrUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{outputs: []process.Output{tt.out}, errs: []error{tt.err}}
			_, err := New(r, "").GetBrightness(context.Background(), "/dev/i2c-7")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBusNumber(t *testing.T) {
	n, err := busNumber("/dev/i2c-12")
	require.NoError(t, err)
	assert.Equal(t, "12", n)

	_, err = busNumber("/dev/i2c-x")
	assert.ErrorIs(t, err, control.ErrUnsupported)
	_, err = busNumber("i2c-3")
	assert.ErrorIs(t, err, control.ErrUnsupported)
}
