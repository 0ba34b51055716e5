package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration: a YAML file as the base,
// environment variables as overrides, built-in defaults last.
type Config struct {
	DataDir      string `yaml:"data_dir" validate:"required"`
	SaveFormat   string `yaml:"save_format" validate:"oneof=parquet json csv"`
	LogLevel     string `yaml:"log_level" validate:"oneof=debug info warn error"`
	FetchDelayMS int    `yaml:"fetch_delay_ms" validate:"min=0"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Journal struct {
		SQLitePath string `yaml:"sqlite_path"` // empty disables journaling
	} `yaml:"journal"`

	Providers struct {
		Polygon struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"polygon"`
		Yahoo struct {
			Proxy string `yaml:"proxy"`
		} `yaml:"yahoo"`
		IBKR struct {
			GatewayURL string `yaml:"gateway_url"` // empty disables the source
		} `yaml:"ibkr"`
	} `yaml:"providers"`

	Refresh struct {
		Cron         string   `yaml:"cron"` // empty disables scheduled refresh
		Source       string   `yaml:"source"`
		Tickers      []string `yaml:"tickers"`
		LookbackDays int      `yaml:"lookback_days" validate:"min=1"`
	} `yaml:"refresh"`
}

// Load reads config from a YAML file (missing file is fine), then applies
// environment variable overrides, then defaults, then validates.
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
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SAVE_FORMAT"); v != "" {
		cfg.SaveFormat = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FETCH_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.FetchDelayMS = ms
		}
	}
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Providers.Polygon.APIKey = v
	}
	if v := os.Getenv("IBKR_GATEWAY_URL"); v != "" {
		cfg.Providers.IBKR.GatewayURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Providers.Yahoo.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Journal.SQLitePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Defaults
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SaveFormat == "" {
		cfg.SaveFormat = defaultSaveFormat()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.FetchDelayMS == 0 {
		// polygon free tier: 5 req/min
		cfg.FetchDelayMS = 12000
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Refresh.Source == "" {
		cfg.Refresh.Source = "yahoo"
	}
	if cfg.Refresh.LookbackDays == 0 {
		cfg.Refresh.LookbackDays = 730
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FetchDelay returns the minimum delay between successive provider calls.
func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.FetchDelayMS) * time.Millisecond
}

func defaultSaveFormat() string {
	switch strings.ToLower(os.Getenv("PROFILE")) {
	case "dev", "development":
		return "csv"
	default:
		return "parquet"
	}
}
