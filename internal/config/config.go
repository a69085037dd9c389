package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

// FileName is the default config file name.
const FileName = "gcsync.yaml"

// Config represents the top-level gcsync.yaml configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	GoCardless GoCardlessConfig `yaml:"gocardless"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Settings   model.Settings   `yaml:"settings"`
	Companies  []CompanyConfig  `yaml:"companies,omitempty"`
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	URL string `yaml:"url"` // empty = in-memory store
}

// GoCardlessConfig controls the API client.
type GoCardlessConfig struct {
	BaseURL      string `yaml:"base_url"`
	RedirectURL  string `yaml:"redirect_url"` // requisition redirect root; the bank name is appended
	UserLanguage string `yaml:"user_language"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	ActivityDir string `yaml:"activity_dir"`
}

// ScheduleConfig holds cron specs for the scheduled hooks.
type ScheduleConfig struct {
	AutoSync     string `yaml:"auto_sync"`
	UpdateStatus string `yaml:"update_status"`
}

// JobsConfig controls the background job runner.
type JobsConfig struct {
	Workers int `yaml:"workers"`
}

// CompanyConfig seeds a company and its API credentials.
type CompanyConfig struct {
	Name            string `yaml:"name"`
	Country         string `yaml:"country"`
	CountryCode     string `yaml:"country_code"`
	DefaultCurrency string `yaml:"default_currency"`
	SecretID        string `yaml:"secret_id,omitempty"`
	SecretKey       string `yaml:"secret_key,omitempty"`
}

// Load reads a gcsync.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new deployment.
func Default() *Config {
	return &Config{
		GoCardless: GoCardlessConfig{
			BaseURL:      "https://bankaccountdata.gocardless.com/api/v2/",
			RedirectURL:  "http://localhost:8080/callback",
			UserLanguage: "en",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:       "info",
			ActivityDir: ".",
		},
		Schedule: ScheduleConfig{
			AutoSync:     "0 */6 * * *",
			UpdateStatus: "0 0 * * *",
		},
		Jobs: JobsConfig{
			Workers: 4,
		},
		Settings: model.Settings{
			Enabled:                                 true,
			AddSupplierInfoIfAvailable:              true,
			CreateSupplierIfDoesNotExist:            true,
			CreateSupplierBankAccountIfDoesNotExist: true,
			SupplierDefaultGroup:                    "All Supplier Groups",
			AddCustomerInfoIfAvailable:              true,
			CreateCustomerIfDoesNotExist:            true,
			CreateCustomerBankAccountIfDoesNotExist: true,
			CustomerDefaultGroup:                    "All Customer Groups",
			CustomerDefaultTerritory:                "All Territories",
			SyncLimit:                               model.DefaultSyncLimit,
		},
	}
}

// LoadEnv loads .env files into the process environment. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with GCSYNC_* environment variables.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("GCSYNC_DATABASE_URL", &c.Database.URL)
	setString("GCSYNC_GOCARDLESS_URL", &c.GoCardless.BaseURL)
	setString("GCSYNC_REDIRECT_URL", &c.GoCardless.RedirectURL)
	setString("GCSYNC_ADDR", &c.Server.Addr)
	setString("GCSYNC_LOG_LEVEL", &c.Log.Level)
	setString("GCSYNC_ACTIVITY_DIR", &c.Log.ActivityDir)

	if v, ok := os.LookupEnv("GCSYNC_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing GCSYNC_WORKERS: %w", err)
		}
		c.Jobs.Workers = n
	}

	id, key := os.Getenv("GCSYNC_SECRET_ID"), os.Getenv("GCSYNC_SECRET_KEY")
	for i := range c.Companies {
		if c.Companies[i].SecretID == "" && id != "" {
			c.Companies[i].SecretID = id
		}
		if c.Companies[i].SecretKey == "" && key != "" {
			c.Companies[i].SecretKey = key
		}
	}
	return nil
}

// Seed writes the settings, companies, countries and credentials into st.
// Cached tokens of existing access rows are kept when the secrets are unchanged.
func (c *Config) Seed(ctx context.Context, st store.Store) error {
	if err := st.SaveSettings(ctx, c.Settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	for _, co := range c.Companies {
		if err := st.SaveCompany(ctx, model.Company{
			Name:            co.Name,
			Country:         co.Country,
			DefaultCurrency: co.DefaultCurrency,
		}); err != nil {
			return fmt.Errorf("saving company %s: %w", co.Name, err)
		}
		if co.Country != "" && co.CountryCode != "" {
			if err := st.SaveCountry(ctx, model.Country{Name: co.Country, Code: co.CountryCode}); err != nil {
				return fmt.Errorf("saving country %s: %w", co.Country, err)
			}
		}
		if co.DefaultCurrency != "" {
			if _, err := st.Currency(ctx, co.DefaultCurrency); errors.Is(err, store.ErrNotFound) {
				if err := st.SaveCurrency(ctx, model.Currency{Name: co.DefaultCurrency, Enabled: true}); err != nil {
					return fmt.Errorf("saving currency %s: %w", co.DefaultCurrency, err)
				}
			}
		}
		if co.SecretID == "" && co.SecretKey == "" {
			continue
		}

		access, err := st.Access(ctx, co.Name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("loading access of %s: %w", co.Name, err)
		}
		if access.SecretID == co.SecretID && access.SecretKey == co.SecretKey {
			continue
		}
		if err := st.SaveAccess(ctx, model.Access{
			Company:   co.Name,
			SecretID:  co.SecretID,
			SecretKey: co.SecretKey,
		}); err != nil {
			return fmt.Errorf("saving access of %s: %w", co.Name, err)
		}
	}
	return nil
}
