package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/display"
)

func newDetectCmd(opts *globalOptions) *cobra.Command {
	var readBrightness bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect displays and show how they were matched",
		Long: `Enumerate compositor outputs and DDC/CI buses, correlate them and print
the result in detail: unique id, match method, bus and current brightness.

Use the unique ids shown here in Home Assistant, and add a display override
to the config file when a monitor is reported as ambiguous.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, true)

			snap, err := takeSnapshot(cmd.Context(), cfg, logger)
			if err != nil {
				printTroubleshooting(cmd.ErrOrStderr())
				return err
			}
			defer snap.close()

			if readBrightness {
				for _, d := range snap.registry.Present() {
					if !d.HasBrightness() {
						continue
					}
					if _, err := snap.executor.ReadBrightness(cmd.Context(), d); err != nil {
						logger.Warn("reading brightness", "unique_id", d.UniqueID, "error", err)
					}
				}
			}

			return printDetect(cmd.OutOrStdout(), snap.registry.Snapshot(), snap.result, time.Now())
		},
	}

	cmd.Flags().BoolVar(&readBrightness, "brightness", true, "Read current brightness over DDC/CI")
	return cmd
}

func printDetect(w io.Writer, displays []display.Display, res display.Result, now time.Time) error {
	present := 0
	for _, d := range displays {
		if d.Present {
			present++
		}
	}
	if present == 0 {
		printTroubleshooting(w)
		return errNoDisplays
	}

	fmt.Fprintf(w, "Found %d display(s):\n\n", present)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIQUE ID\tOUTPUT\tBUS\tMAKE / MODEL\tSERIAL\tMATCH\tPOWER\tBRIGHTNESS\tRESOLUTION\tLAST SEEN")
	for _, d := range displays {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.UniqueID,
			orDash(d.OutputID),
			orDash(d.BusPath),
			orDash(strings.TrimSpace(d.Make+" "+d.Model)),
			orDash(d.Serial),
			d.Match,
			d.Power,
			brightnessColumn(d),
			orDash(d.Resolution),
			lastSeen(d, now),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.UnmatchedBuses) > 0 {
		fmt.Fprintln(w, "\nDDC/CI buses without an output:")
		for _, b := range res.UnmatchedBuses {
			fmt.Fprintf(w, "  %s  %s %s  serial %s\n", b.Path, b.Make, b.Model, orDash(b.Serial))
		}
	}

	if len(res.Ambiguities) > 0 {
		fmt.Fprintln(w, "\nAmbiguous monitors (add a display override to pin them):")
		for _, a := range res.Ambiguities {
			fmt.Fprintf(w, "  %s %s: outputs %s, buses %s\n",
				a.Make, a.Model, strings.Join(a.Outputs, ", "), strings.Join(a.Buses, ", "))
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, msg := range res.Warnings {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}

	fmt.Fprintln(w, "\nUse these unique IDs in your Home Assistant configuration.")
	return nil
}

func printTroubleshooting(w io.Writer) {
	fmt.Fprintln(w, "No displays found.")
	fmt.Fprintln(w, "\nTroubleshooting:")
	fmt.Fprintln(w, "  - Ensure wlr-randr is installed")
	fmt.Fprintln(w, "  - Ensure you're running under a wlroots-based Wayland compositor")
	fmt.Fprintln(w, "  - Check the WAYLAND_DISPLAY environment variable")
}

func brightnessColumn(d display.Display) string {
	switch {
	case !d.HasBrightness():
		return "no-ddc"
	case d.Brightness == nil:
		return "?"
	default:
		return fmt.Sprintf("%d%%", *d.Brightness)
	}
}

func lastSeen(d display.Display, now time.Time) string {
	switch {
	case d.Present:
		return "now"
	case d.LastSeen.IsZero():
		return "never"
	default:
		return humanize.RelTime(d.LastSeen, now, "ago", "from now")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
