package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/process"
)

type scriptedRunner struct {
	calls [][]string
	out   map[string]string
}

func (r *scriptedRunner) Run(_ context.Context, binary string, args ...string) (process.Output, error) {
	r.calls = append(r.calls, append([]string{binary}, args...))
	return process.Output{Stdout: []byte(r.out[binary])}, nil
}

func TestNew_RoutesToConfiguredBinaries(t *testing.T) {
	r := &scriptedRunner{out: map[string]string{
		"/opt/wlr-randr": "DP-1 \"x\"\n  Enabled: yes\n",
		"/opt/ddcutil":   "VCP 10 C 33 100\n",
	}}
	set := New(config.ToolsConfig{WlrRandr: "/opt/wlr-randr", DDCUtil: "/opt/ddcutil"}, r)
	ctx := context.Background()

	outputs, err := set.Outputs.ListOutputs(ctx)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "DP-1", outputs[0].ID)

	require.NoError(t, set.Hardware.SetPower(ctx, "DP-1", false))

	v, err := set.Hardware.GetBrightness(ctx, "/dev/i2c-5")
	require.NoError(t, err)
	assert.Equal(t, 33, v)

	require.NoError(t, set.Hardware.SetBrightness(ctx, "/dev/i2c-5", 20))

	assert.Equal(t, [][]string{
		{"/opt/wlr-randr"},
		{"/opt/wlr-randr", "--output", "DP-1", "--off"},
		{"/opt/ddcutil", "getvcp", "10", "--bus", "5", "--brief"},
		{"/opt/ddcutil", "setvcp", "10", "20", "--bus", "5"},
	}, r.calls)
}
