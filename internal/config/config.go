package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"TickerLens/internal/executor"
	"TickerLens/internal/model"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Providers lists the accepted data_source.provider values.
var Providers = []string{"yahoo", "rest", "synthetic"}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Commands bool   `yaml:"commands"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider       string `yaml:"provider"`
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"data_source"`
	Defaults struct {
		Tickers  []string `yaml:"tickers"`
		Start    string   `yaml:"start"`
		End      string   `yaml:"end"` // empty means today
		Interval string   `yaml:"interval"`
	} `yaml:"defaults"`
	Fetch struct {
		Workers       int    `yaml:"workers"`
		FailurePolicy string `yaml:"failure_policy"`
	} `yaml:"fetch"`
	Cache struct {
		MaxEntries int `yaml:"max_entries"` // 0 means unbounded
	} `yaml:"cache"`
	Schedule struct {
		RolloverCron string `yaml:"rollover_cron"`
		StatsCron    string `yaml:"stats_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"` // empty disables the audit log
	} `yaml:"database"`
	Session struct {
		StateFile string `yaml:"state_file"` // empty disables restore on restart
	} `yaml:"session"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	Export struct {
		Dir string `yaml:"dir"`
	} `yaml:"export"`
	Proxy string `yaml:"proxy"`
}

// Path returns the config file path, honouring CONFIG_PATH.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("TICKERLENS_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("TICKERLENS_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("TICKERLENS_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("TICKERLENS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("TICKERLENS_WORKERS: %w", err)
		}
		cfg.Fetch.Workers = n
	}
	if v := os.Getenv("TICKERLENS_FAILURE_POLICY"); v != "" {
		cfg.Fetch.FailurePolicy = v
	}
	if v := os.Getenv("TICKERLENS_CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("TICKERLENS_CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.Cache.MaxEntries = n
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TICKERLENS_STATE_FILE"); v != "" {
		cfg.Session.StateFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}

	// Defaults
	if cfg.DataSource.Provider == "" {
		cfg.DataSource.Provider = "yahoo"
	}
	cfg.DataSource.Provider = strings.ToLower(cfg.DataSource.Provider)
	if cfg.DataSource.TimeoutSeconds == 0 {
		cfg.DataSource.TimeoutSeconds = 30
	}
	if len(cfg.Defaults.Tickers) == 0 {
		cfg.Defaults.Tickers = []string{"GOOG", "TSLA", "AAPL", "NVDA", "META", "BRK.B"}
	}
	if cfg.Defaults.Start == "" {
		cfg.Defaults.Start = "1960-01-01"
	}
	if cfg.Defaults.Interval == "" {
		cfg.Defaults.Interval = string(model.Daily)
	}
	if cfg.Fetch.Workers == 0 {
		cfg.Fetch.Workers = executor.DefaultWorkers
	}
	if cfg.Fetch.FailurePolicy == "" {
		cfg.Fetch.FailurePolicy = string(executor.AllOrNothing)
	}
	if cfg.Schedule.RolloverCron == "" {
		cfg.Schedule.RolloverCron = "0 5 0 * * *"
	}
	if cfg.Schedule.StatsCron == "" {
		cfg.Schedule.StatsCron = "0 0 * * * *"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}

	return cfg, nil
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	var errs []error
	switch c.DataSource.Provider {
	case "yahoo", "synthetic":
	case "rest":
		if c.DataSource.BaseURL == "" {
			errs = append(errs, errors.New("data_source.base_url is required for the rest provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("data_source.provider %q is not one of %s", c.DataSource.Provider, strings.Join(Providers, ", ")))
	}
	if c.DataSource.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("data_source.timeout_seconds must not be negative"))
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		errs = append(errs, errors.New("telegram.chat_id is required when telegram.bot_token is set"))
	}
	if _, err := c.DesiredState(model.Today()); err != nil {
		errs = append(errs, fmt.Errorf("defaults: %w", err))
	}
	if c.Fetch.Workers <= 0 {
		errs = append(errs, errors.New("fetch.workers must be positive"))
	}
	if _, err := executor.ParsePolicy(c.Fetch.FailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("fetch.failure_policy: %w", err))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must not be negative"))
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.RolloverCron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.rollover_cron: %w", err))
	}
	if _, err := parser.Parse(c.Schedule.StatsCron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.stats_cron: %w", err))
	}
	return errors.Join(errs...)
}

// DesiredState builds the initial desired state. An empty end date resolves
// to today.
func (c *Config) DesiredState(today model.Date) (model.DesiredState, error) {
	start, err := model.ParseDate(c.Defaults.Start)
	if err != nil {
		return model.DesiredState{}, fmt.Errorf("start: %w", err)
	}
	end := today
	if c.Defaults.End != "" {
		if end, err = model.ParseDate(c.Defaults.End); err != nil {
			return model.DesiredState{}, fmt.Errorf("end: %w", err)
		}
	}
	interval, err := model.ParseInterval(c.Defaults.Interval)
	if err != nil {
		return model.DesiredState{}, err
	}
	d := model.DesiredState{
		Symbols: c.Defaults.Tickers,
		Window:  model.Window{Start: start, End: end, Interval: interval},
	}
	return d.Normalize()
}

// Timeout is the upstream HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.DataSource.TimeoutSeconds) * time.Second
}

// Policy returns the parsed failure policy. Call after Validate.
func (c *Config) Policy() executor.Policy {
	p, _ := executor.ParsePolicy(c.Fetch.FailurePolicy)
	return p
}
