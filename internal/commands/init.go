package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/config"
)

type initOptions struct {
	company     string
	country     string
	countryCode string
	currency    string
	secretID    string
	secretKey   string
	databaseURL string
	force       bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a gcsync.yaml and a sample .env",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.company, "company", "", "company name (required)")
	_ = cmd.MarkFlagRequired("company")
	cmd.Flags().StringVar(&opts.country, "country", "", "company country name")
	cmd.Flags().StringVar(&opts.countryCode, "country-code", "", "ISO 3166 alpha-2 code of the country")
	cmd.Flags().StringVar(&opts.currency, "currency", "", "company default currency")
	cmd.Flags().StringVar(&opts.secretID, "secret-id", "", "GoCardless secret id, written to .env")
	cmd.Flags().StringVar(&opts.secretKey, "secret-key", "", "GoCardless secret key, written to .env")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL, written to .env")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts initOptions) error {
	if opts.secretID != "" || opts.secretKey != "" {
		if err := access.ValidateCredentials(opts.secretID, opts.secretKey); err != nil {
			return err
		}
	}
	if (opts.country == "") != (opts.countryCode == "") {
		return errors.New("--country and --country-code go together")
	}

	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return fmt.Errorf("creating directory logs: %w", err)
	}

	cfgPath := filepath.Join(dir, config.FileName)
	if err := checkOverwrite(cfgPath, opts.force); err != nil {
		return err
	}
	cfg := config.Default()
	cfg.Log.ActivityDir = "."
	cfg.Companies = []config.CompanyConfig{{
		Name:            opts.company,
		Country:         opts.country,
		CountryCode:     strings.ToLower(opts.countryCode),
		DefaultCurrency: strings.ToUpper(opts.currency),
	}}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	envPath := filepath.Join(dir, ".env")
	if err := checkOverwrite(envPath, opts.force); err != nil {
		return err
	}
	env := fmt.Sprintf("GCSYNC_DATABASE_URL=%s\nGCSYNC_SECRET_ID=%s\nGCSYNC_SECRET_KEY=%s\n", opts.databaseURL, opts.secretID, opts.secretKey)
	if err := os.WriteFile(envPath, []byte(env), 0o600); err != nil {
		return fmt.Errorf("writing .env: %w", err)
	}

	gitignore := ".env\nlogs/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized gcsync for %s at %s\n", opts.company, dir)
	return nil
}

func checkOverwrite(path string, force bool) error {
	if force {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("checking %s: %w", path, err)
	}
}
