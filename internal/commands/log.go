package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/activitylog"
)

type logOptions struct {
	level string
	ref   string
	limit int
}

func newLogCommand(flags *globalFlags) *cobra.Command {
	var opts logOptions

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, flags, opts)
		},
	}
	cmd.Flags().StringVar(&opts.level, "level", "", "only show entries of this level (info or error)")
	cmd.Flags().StringVar(&opts.ref, "ref", "", "only show entries about this bank or account")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "show the last n entries (0 for all)")
	return cmd
}

func runLog(cmd *cobra.Command, flags *globalFlags, opts logOptions) error {
	switch activitylog.Level(opts.level) {
	case "", activitylog.LevelInfo, activitylog.LevelError:
	default:
		return fmt.Errorf("unknown level %q", opts.level)
	}

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	entries, err := activitylog.Read(cfg.Log.ActivityDir)
	if err != nil {
		return err
	}

	var shown []activitylog.Entry
	for _, e := range entries {
		if opts.level != "" && e.Level != activitylog.Level(opts.level) {
			continue
		}
		if opts.ref != "" && e.Ref != opts.ref {
			continue
		}
		shown = append(shown, e)
	}
	if opts.limit > 0 && len(shown) > opts.limit {
		shown = shown[len(shown)-opts.limit:]
	}
	if len(shown) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No activity")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLEVEL\tCOMPONENT\tACTION\tREF\tDETAILS")
	for _, e := range shown {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Level, e.Component, e.Action, e.Ref, e.Details)
	}
	return w.Flush()
}
