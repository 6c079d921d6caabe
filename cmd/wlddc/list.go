package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/display"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected displays",
		Args:  cobra.NoArgs,
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

			return printList(cmd.OutOrStdout(), snap.registry.Present())
		},
	}
}

// printList writes one line per display: output, power, ddc support, label
// and unique id.
func printList(w io.Writer, displays []display.Display) error {
	if len(displays) == 0 {
		return errNoDisplays
	}
	for _, d := range displays {
		ddc := "no-ddc"
		if d.HasBrightness() {
			ddc = "ddc"
		}
		name := d.Model
		if name == "" {
			name = d.OutputID
		}
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n", d.OutputID, d.Power, ddc, name, d.UniqueID)
	}
	return nil
}
