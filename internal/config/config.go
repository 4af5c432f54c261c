package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort     = 2333
	defaultEnv      = "development"
	defaultTimezone = "Asia/Kolkata"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "agentbrowse"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultEngineURL     = "http://127.0.0.1:8001"
	defaultEngineTimeout = 30

	defaultCurrency = "INR"

	defaultTrialDailyMinutes = 15
	defaultTrialMaxDays      = 5
	defaultTrialWindowDays   = 30
)

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	normalizeAppConfig(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if err := validateDSN(cfg.DSN); err != nil {
		return nil, fmt.Errorf("invalid database DSN in %q: %w", path, err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q in %q: %w", cfg.Timezone, path, err)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		Timezone: defaultTimezone,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Engine: EngineConfig{
			URL:            defaultEngineURL,
			TimeoutSeconds: defaultEngineTimeout,
		},
		Payment: PaymentConfig{
			Currency: defaultCurrency,
			Plans: map[string]int64{
				"pro-monthly": 49900,
				"pro-yearly":  499900,
			},
		},
		Trial: TrialConfig{
			DailyMinutes: defaultTrialDailyMinutes,
			MaxDays:      defaultTrialMaxDays,
			WindowDays:   defaultTrialWindowDays,
		},
	}
	normalizeAppConfig(&cfg)
	return cfg
}

func normalizeAppConfig(cfg *AppConfig) {
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.Paths.Logs = strings.TrimSpace(cfg.Paths.Logs)
	cfg.Paths.Static = strings.TrimSpace(cfg.Paths.Static)

	if v := strings.TrimSpace(cfg.Timezone); v != "" {
		cfg.Timezone = v
	} else {
		cfg.Timezone = defaultTimezone
	}

	cfg.Engine.URL = strings.TrimRight(strings.TrimSpace(cfg.Engine.URL), "/")
	if cfg.Engine.URL == "" {
		cfg.Engine.URL = defaultEngineURL
	}
	if cfg.Engine.TimeoutSeconds <= 0 {
		cfg.Engine.TimeoutSeconds = defaultEngineTimeout
	}

	cfg.Payment.Currency = strings.ToUpper(strings.TrimSpace(cfg.Payment.Currency))
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = defaultCurrency
	}
	if cfg.Payment.Plans == nil {
		cfg.Payment.Plans = map[string]int64{}
	}

	if cfg.Trial.DailyMinutes <= 0 {
		cfg.Trial.DailyMinutes = defaultTrialDailyMinutes
	}
	if cfg.Trial.MaxDays <= 0 {
		cfg.Trial.MaxDays = defaultTrialMaxDays
	}
	if cfg.Trial.WindowDays <= 0 {
		cfg.Trial.WindowDays = defaultTrialWindowDays
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// EngineTimeout returns the engine HTTP timeout as a duration.
func (c *AppConfig) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// Location resolves the configured timezone. Falls back to UTC if the
// zone database entry is missing at runtime.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return ResolveRuntimePath("", "logs")
	}
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

func (c *AppConfig) StaticDir() string {
	if c == nil {
		return ResolveRuntimePath("", "static")
	}
	return ResolveRuntimePath(c.Paths.Static, "static")
}
