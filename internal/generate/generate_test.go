package generate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

func testParams() Params {
	return Params{
		Binary:         "/usr/local/bin/wlddc",
		ConfigPath:     "/home/alex/.config/wlddc/config.yaml",
		StateDir:       "/home/alex/.local/state/wlddc",
		WaylandDisplay: "wayland-0",
		RuntimeDir:     "/run/user/1000",
		BrokerHost:     "broker.lan",
		BrokerPort:     1883,
		DeviceID:       "work_desk",
		DeviceName:     "Work-Desk Monitors",
	}
}

func TestRender_Systemd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, KindSystemd, testParams()))

	out := buf.String()
	assert.Contains(t, out, "ExecStart=/usr/local/bin/wlddc run --config /home/alex/.config/wlddc/config.yaml\n")
	assert.Contains(t, out, "Environment=WAYLAND_DISPLAY=wayland-0\n")
	assert.Contains(t, out, "Environment=XDG_RUNTIME_DIR=/run/user/1000\n")
	assert.Contains(t, out, "ReadWritePaths=/home/alex/.local/state/wlddc\n")

	p := testParams()
	p.ConfigPath = ""
	buf.Reset()
	require.NoError(t, Render(&buf, KindSystemd, p))
	assert.Contains(t, buf.String(), "ExecStart=/usr/local/bin/wlddc run\n")
}

func TestRender_ConfigLoads(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, KindConfig, testParams()))

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "broker.lan", cfg.MQTT.Broker.Host)
	assert.Equal(t, "work_desk", cfg.HomeAssistant.DeviceID)
	assert.Equal(t, "Work-Desk Monitors", cfg.HomeAssistant.DeviceName)
	assert.Empty(t, cfg.Displays.Overrides)
}

func TestRender_Env(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, KindEnv, testParams()))

	assert.Contains(t, buf.String(), "WLDDC_MQTT_HOST=broker.lan\n")
	assert.Contains(t, buf.String(), "WLDDC_DEVICE_ID=work_desk\n")
}

func TestRender_PM2(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, KindPM2, testParams()))

	out := buf.String()
	assert.Contains(t, out, "script: '/usr/local/bin/wlddc',")
	assert.Contains(t, out, "args: 'run --config /home/alex/.config/wlddc/config.yaml',")
	assert.Contains(t, out, "interpreter: 'none',")
	assert.Contains(t, out, "WAYLAND_DISPLAY: 'wayland-0',")
	assert.Contains(t, out, "XDG_RUNTIME_DIR: '/run/user/1000',")
	assert.Contains(t, out, "error_file: '~/.pm2/logs/wlddc-error.log',")

	p := testParams()
	p.ConfigPath = "/home/o'neil/wlddc.yaml"
	buf.Reset()
	require.NoError(t, Render(&buf, KindPM2, p))
	assert.Contains(t, buf.String(), `--config /home/o\'neil/wlddc.yaml'`, "quotes are escaped for the JS string")
}

func TestRender_UnknownKind(t *testing.T) {
	err := Render(&bytes.Buffer{}, "launchd", testParams())
	assert.ErrorContains(t, err, "unknown file kind")
}

func TestDeviceDefaults(t *testing.T) {
	tests := []struct {
		hostname string
		wantID   string
		wantName string
	}{
		{"Work-Desk.lan", "work_desk", "Work-Desk Monitors"},
		{"laptop", "laptop", "laptop Monitors"},
		{"", "wlddc", "wlddc Monitors"},
	}
	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			id, name := DeviceDefaults(tt.hostname)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestWaylandEnv(t *testing.T) {
	env := map[string]string{"WAYLAND_DISPLAY": "wayland-0"}
	wd, rd := WaylandEnv(func(k string) string { return env[k] }, 1000)
	assert.Equal(t, "wayland-0", wd)
	assert.Equal(t, "/run/user/1000", rd)

	env = map[string]string{"XDG_RUNTIME_DIR": "/tmp/rt"}
	wd, rd = WaylandEnv(func(k string) string { return env[k] }, 1000)
	assert.Equal(t, "wayland-1", wd)
	assert.Equal(t, "/tmp/rt", rd)
}
