package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/logging"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	broker     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "wlddc",
		Short: "Wayland monitor control for Home Assistant",
		Long: `wlddc matches Wayland compositor outputs with DDC/CI buses and
exposes each monitor's power, brightness and resolution to Home Assistant
through MQTT discovery.

Run 'wlddc detect' first to check how your monitors were matched, then
'wlddc run' (usually from the systemd unit created by 'wlddc generate
systemd') to start the agent.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to config file (default: $WLDDC_CONFIG or ~/.config/wlddc/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.broker, "broker", "b", "",
		"MQTT broker as host or host:port, overrides the config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(
		newRunCmd(opts),
		newDetectCmd(opts),
		newListCmd(opts),
		newPowerCmd(opts, true),
		newPowerCmd(opts, false),
		newSetCmd(opts),
		newGenerateCmd(opts),
		newTokenCmd(opts),
		newBrokersCmd(opts),
		newDBCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves, loads and validates the configuration, then applies
// command-line overrides.
func loadConfig(opts *globalOptions) (*config.Config, string, error) {
	path := config.ResolvePath(opts.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	if opts.broker != "" {
		host, port, err := parseBroker(opts.broker, cfg.MQTT.Broker.Port)
		if err != nil {
			return nil, path, err
		}
		cfg.MQTT.Broker.Host = host
		cfg.MQTT.Broker.Port = port
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}

	return cfg, path, nil
}

// parseBroker accepts "host" or "host:port".
func parseBroker(s string, defaultPort int) (string, int, error) {
	if !strings.Contains(s, ":") {
		return s, defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --broker %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid --broker port %q", portStr)
	}
	return host, port, nil
}

// newLogger creates the application logger. One-shot commands log warnings
// only, unless --verbose is set, so their stdout stays readable.
func newLogger(cfg *config.Config, oneShot bool) *logging.Logger {
	lc := cfg.Logging
	if oneShot {
		lc.Output = "stderr"
		if lc.Level != "debug" {
			lc.Level = "warn"
		}
	}
	return logging.New(lc, version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wlddc %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
