// Package generate renders deployment files: a systemd user unit or a PM2
// ecosystem file for running the agent, plus example configuration and
// environment files.
package generate

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/nerrad567/wlddc/internal/display"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Template names.
const (
	systemdTemplate = "systemd.service.tmpl"
	configTemplate  = "config.yaml.tmpl"
	envTemplate     = "env.tmpl"
	pm2Template     = "pm2.config.js.tmpl"
)

// Kinds accepted by Render.
const (
	KindSystemd = "systemd"
	KindConfig  = "config"
	KindEnv     = "env"
	KindPM2     = "pm2"
)

// Params fills the templates.
type Params struct {
	Binary         string
	ConfigPath     string
	StateDir       string
	WaylandDisplay string
	RuntimeDir     string
	BrokerHost     string
	BrokerPort     int
	DeviceID       string
	DeviceName     string
}

// Render writes the file of the given kind to w.
func Render(w io.Writer, kind string, p Params) error {
	var name string
	switch kind {
	case KindSystemd:
		name = systemdTemplate
	case KindConfig:
		name = configTemplate
	case KindEnv:
		name = envTemplate
	case KindPM2:
		name = pm2Template
	default:
		return fmt.Errorf("unknown file kind %q (want %s, %s, %s or %s)", kind, KindSystemd, KindPM2, KindConfig, KindEnv)
	}

	if err := templates.ExecuteTemplate(w, name, p); err != nil {
		return fmt.Errorf("rendering %s: %w", kind, err)
	}
	return nil
}

// DeviceDefaults derives the Home Assistant device id and name from the
// host name, e.g. "Work-Desk.lan" gives "work_desk" and "Work-Desk Monitors".
func DeviceDefaults(hostname string) (id, name string) {
	short, _, _ := strings.Cut(hostname, ".")
	if short == "" {
		short = "wlddc"
	}
	id = display.Sanitize(short)
	if id == "" {
		id = "wlddc"
	}
	return id, short + " Monitors"
}

// WaylandEnv returns the session's WAYLAND_DISPLAY and XDG_RUNTIME_DIR,
// falling back to the usual defaults for uid.
func WaylandEnv(getenv func(string) string, uid int) (waylandDisplay, runtimeDir string) {
	waylandDisplay = getenv("WAYLAND_DISPLAY")
	if waylandDisplay == "" {
		waylandDisplay = "wayland-1"
	}
	runtimeDir = getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = fmt.Sprintf("/run/user/%d", uid)
	}
	return waylandDisplay, runtimeDir
}

// DefaultParams fills Params from the running environment.
func DefaultParams(configPath, statePath string) Params {
	hostname, _ := os.Hostname()
	id, name := DeviceDefaults(hostname)
	wd, rd := WaylandEnv(os.Getenv, os.Getuid())

	binary, err := os.Executable()
	if err != nil {
		binary = "wlddc"
	}

	return Params{
		Binary:         binary,
		ConfigPath:     configPath,
		StateDir:       filepath.Dir(statePath),
		WaylandDisplay: wd,
		RuntimeDir:     rd,
		BrokerHost:     "homeassistant.local",
		BrokerPort:     1883,
		DeviceID:       id,
		DeviceName:     name,
	}
}
