package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultPort           = 8080
	defaultWeatherCSVPath = "flight_weather_data.csv"
	defaultLiveURL        = "http://api.aviationstack.com/v1/flights"
	defaultLiveLimit      = 50
	defaultRequestTimeout = 15 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Config holds settings shared by the dashboard and the watcher.
type Config struct {
	Port           int           `toml:"port"`
	WeatherCSVPath string        `toml:"weather_csv_path"`
	LiveURL        string        `toml:"live_url"`
	LiveAccessKey  string        `toml:"live_access_key"`
	LiveLimit      int           `toml:"live_limit"`
	RequestTimeout time.Duration `toml:"-"`
	DatabaseURL    string        `toml:"database_url"`
	BearerToken    string        `toml:"bearer_token"`
	LogLevel       string        `toml:"log_level"`
	LogFormat      string        `toml:"log_format"`
	DryRun         bool          `toml:"dry_run"`

	// RequestTimeoutText is the TOML spelling of RequestTimeout, e.g. "15s".
	RequestTimeoutText string `toml:"request_timeout"`
}

// Load reads an optional .env, then an optional TOML file named by
// DASHBOARD_CONFIG, then environment variables, each overriding the last.
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:           defaultPort,
		WeatherCSVPath: defaultWeatherCSVPath,
		LiveURL:        defaultLiveURL,
		LiveLimit:      defaultLiveLimit,
		RequestTimeout: defaultRequestTimeout,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
	}

	if path := strings.TrimSpace(os.Getenv("DASHBOARD_CONFIG")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if cfg.RequestTimeoutText != "" {
			d, err := time.ParseDuration(cfg.RequestTimeoutText)
			if err != nil || d <= 0 {
				return cfg, fmt.Errorf("invalid request_timeout: %s", cfg.RequestTimeoutText)
			}
			cfg.RequestTimeout = d
		}
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	}

	if path := strings.TrimSpace(os.Getenv("WEATHER_CSV_PATH")); path != "" {
		cfg.WeatherCSVPath = path
	}

	if u := strings.TrimSpace(os.Getenv("AVIATIONSTACK_URL")); u != "" {
		cfg.LiveURL = u
	}

	if key := strings.TrimSpace(os.Getenv("AVIATIONSTACK_ACCESS_KEY")); key != "" {
		cfg.LiveAccessKey = key
	}

	if limitStr := os.Getenv("LIVE_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			cfg.LiveLimit = limit
		} else {
			return cfg, fmt.Errorf("invalid LIVE_LIMIT: %s", limitStr)
		}
	}

	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %s", v)
		}
		cfg.RequestTimeout = d
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	if token := os.Getenv("API_BEARER_TOKEN"); token != "" {
		cfg.BearerToken = token
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		cfg.LogFormat = format
	}

	if dryRun := strings.TrimSpace(os.Getenv("DRY_RUN")); dryRun != "" {
		cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
