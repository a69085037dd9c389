package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/app"
	"github.com/cleared-dev/gcsync/internal/schedule"
)

const shutdownTimeout = 30 * time.Second

func newScheduleCommand(flags *globalFlags) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the scheduled hooks",
	}
	scheduleCmd.AddCommand(&cobra.Command{
		Use:       "run <hook>",
		Short:     "Run a hook once (auto_sync or update_banks_status)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{schedule.HookAutoSync, schedule.HookUpdateBanksStatus},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				if err := schedule.RunHook(ctx, a.Hooks, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s done\n", args[0])
				return nil
			})
		},
	})
	return scheduleCmd
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduled hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			return runServe(cmd.Context(), a, addr, !noSchedule)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "don't run the scheduled hooks")
	return cmd
}

func runServe(ctx context.Context, a *app.App, addr string, scheduled bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sched *schedule.Scheduler
	if scheduled {
		s, err := a.Scheduler()
		if err != nil {
			_ = a.Close(context.Background())
			return err
		}
		sched = s
		sched.Start()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		a.Logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs := []error{serveErr, srv.Shutdown(shutdownCtx)}
	if sched != nil {
		errs = append(errs, sched.Stop(shutdownCtx))
	}
	errs = append(errs, a.Close(shutdownCtx))
	return errors.Join(errs...)
}
