package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/app"
	"github.com/cleared-dev/gcsync/internal/id"
)

func newSyncCommand(flags *globalFlags) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "sync <bank> <account>",
		Short: "Sync the transactions of a bank account",
		Long: "Sync the transactions of a bank account over [from, to] in two day windows.\n" +
			"Without dates today is synced. Windows beyond the daily sync limit are left out.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDay, err := parseDayFlag("from", from)
			if err != nil {
				return err
			}
			toDay, err := parseDayFlag("to", to)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				return runSync(ctx, cmd, a, args[0], args[1], fromDay, toDay)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, a *app.App, bank, account string, from, to time.Time) error {
	res, err := a.Sync.EnqueueSync(ctx, bank, account, from, to)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, w := range res.Windows {
		fmt.Fprintf(out, "Syncing %s\n", w)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(out, "%d windows left out by the daily sync limit\n", res.Dropped)
	}
	a.Runner.Wait()
	if err := a.Runner.Err(id.TransactionsSyncJobID(account)); err != nil {
		return fmt.Errorf("syncing %s of %s: %w", account, bank, err)
	}
	fmt.Fprintf(out, "Synced %s of %s\n", account, bank)
	return nil
}

func parseDayFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return t, nil
}
