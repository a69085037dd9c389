package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/app"
	"github.com/cleared-dev/gcsync/internal/buildinfo"
	"github.com/cleared-dev/gcsync/internal/config"
	"github.com/cleared-dev/gcsync/internal/logging"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	envPath    string
	logLevel   string
	logJSON    bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "gcsync",
		Short:   "Sync GoCardless bank accounts and transactions into the ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", config.FileName, "config file")
	rootCmd.PersistentFlags().StringVar(&flags.envPath, "env", ".env", "env file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides the config)")
	rootCmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "log as JSON")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newMigrateCommand(flags))
	rootCmd.AddCommand(newBanksCommand(flags))
	rootCmd.AddCommand(newBankCommand(flags))
	rootCmd.AddCommand(newAccountCommand(flags))
	rootCmd.AddCommand(newSyncCommand(flags))
	rootCmd.AddCommand(newScheduleCommand(flags))
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newLogCommand(flags))

	return rootCmd
}

// loadConfig reads the env file and config. A missing config file at the
// default path falls back to the defaults.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	if err := config.LoadEnv(flags.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if cfg.Log.ActivityDir != "" && !filepath.IsAbs(cfg.Log.ActivityDir) {
		cfg.Log.ActivityDir = filepath.Join(filepath.Dir(flags.configPath), cfg.Log.ActivityDir)
	}
	return cfg, nil
}

// openApp loads the config and opens the app. The caller closes it.
func openApp(cmd *cobra.Command, flags *globalFlags) (*app.App, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), logging.Options{Level: cfg.Log.Level, JSON: flags.logJSON, Prefix: "gcsync"})
	if err != nil {
		return nil, err
	}
	return app.Open(cmd.Context(), cfg, logger)
}

// withApp runs fn with an open app and closes it afterwards, letting queued
// jobs finish first.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp(cmd, flags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	runErr := fn(ctx, a)
	a.Runner.Wait()
	if err := a.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// volatileNote warns that nothing outlives the command on the in-memory store.
func volatileNote(cmd *cobra.Command, a *app.App) {
	if !a.Persistent() {
		fmt.Fprintln(cmd.ErrOrStderr(), "note: no database configured, changes are not kept")
	}
}
