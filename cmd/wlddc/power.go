package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/display"
)

// newPowerCmd builds "on" or "off".
func newPowerCmd(opts *globalOptions, on bool) *cobra.Command {
	var selector string

	use, short, done := "off", "Turn display(s) off", "Turned off"
	if on {
		use, short, done = "on", "Turn display(s) on", "Turned on"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Example: fmt.Sprintf(`  wlddc %s
  wlddc %s --display HDMI-A-1`, use, use),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}

			snap, err := takeSnapshot(cmd.Context(), cfg, newLogger(cfg, true))
			if err != nil {
				return err
			}
			defer snap.close()

			selected, err := targets(snap.registry.Present(), selector, nil)
			if err != nil {
				return err
			}

			var failed error
			for _, d := range selected {
				if _, err := snap.executor.SetPower(cmd.Context(), d, on); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", d.OutputID, err)
					failed = errors.Join(failed, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d.OutputID, done)
			}
			return failed
		},
	}

	cmd.Flags().StringVarP(&selector, "display", "d", "", "Target one display by output name or unique id")
	return cmd
}

func newSetCmd(opts *globalOptions) *cobra.Command {
	var selector string

	cmd := &cobra.Command{
		Use:   "set <0-100|N%>",
		Short: "Set display brightness",
		Example: `  wlddc set 50
  wlddc set 75%
  wlddc set 30 --display HDMI-A-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseBrightness(args[0])
			if err != nil {
				return err
			}

			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}

			snap, err := takeSnapshot(cmd.Context(), cfg, newLogger(cfg, true))
			if err != nil {
				return err
			}
			defer snap.close()

			selected, err := targets(snap.registry.Present(), selector, display.Display.HasBrightness)
			if errors.Is(err, errNoDisplays) {
				return errors.New("no displays with brightness control found")
			}
			if err != nil {
				return err
			}

			var failed error
			for _, d := range selected {
				if !d.HasBrightness() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: No DDC support, skipping\n", d.OutputID)
					continue
				}
				if _, err := snap.executor.SetBrightness(cmd.Context(), d, value); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", d.OutputID, err)
					failed = errors.Join(failed, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: Set brightness to %d%%\n", d.OutputID, value)
			}
			return failed
		},
	}

	cmd.Flags().StringVarP(&selector, "display", "d", "", "Target one display by output name or unique id")
	return cmd
}

// parseBrightness accepts "50" or "50%".
func parseBrightness(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid brightness value: %s", s)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("brightness must be between 0 and 100, got %d", v)
	}
	return v, nil
}
