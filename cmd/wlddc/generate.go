package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/generate"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
)

type generateOptions struct {
	output         string
	waylandDisplay string
}

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	gen := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <systemd|pm2|config|env>",
		Short: "Generate a service definition, config file or environment file",
		Long: `Generate deployment files from the current session.

  systemd  user unit that runs 'wlddc run' inside the Wayland session
  pm2      PM2 ecosystem file, for hosts that supervise with pm2
  config   commented config.yaml with this host's defaults
  env      environment file for the unit (WAYLAND_DISPLAY and friends)`,
		Example: `  wlddc generate config -o ~/.config/wlddc/config.yaml
  wlddc generate systemd -o ~/.config/systemd/user/wlddc.service
  wlddc generate pm2 -o ecosystem.config.js`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{generate.KindSystemd, generate.KindPM2, generate.KindConfig, generate.KindEnv},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := generateParams(opts, gen)
			if err != nil {
				return err
			}
			if gen.output == "" {
				return generate.Render(cmd.OutOrStdout(), args[0], p)
			}
			if err := writeGenerated(gen.output, args[0], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", gen.output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&gen.output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&gen.waylandDisplay, "wayland-display", "", "WAYLAND_DISPLAY for the service (default: current session)")
	return cmd
}

// generateParams fills template parameters from the environment and flags.
// The config file is not loaded: it may not exist yet.
func generateParams(opts *globalOptions, gen *generateOptions) (generate.Params, error) {
	configPath := opts.configPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	p := generate.DefaultParams(configPath, config.Default().Database.Path)
	if gen.waylandDisplay != "" {
		p.WaylandDisplay = gen.waylandDisplay
	}
	if opts.broker != "" {
		host, port, err := parseBroker(opts.broker, p.BrokerPort)
		if err != nil {
			return generate.Params{}, err
		}
		p.BrokerHost, p.BrokerPort = host, port
	}
	return p, nil
}

// writeGenerated renders into path, creating parent directories. Existing
// files are replaced.
func writeGenerated(path, kind string, p generate.Params) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Config and env files may carry credentials.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	return generate.Render(f, kind, p)
}
