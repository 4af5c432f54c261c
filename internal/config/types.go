package config

import "github.com/agentbrowse/core/internal/pkg/mail"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
	Engine         EngineConfig          `yaml:"engine"`
	Payment        PaymentConfig         `yaml:"payment"`
	Trial          TrialConfig           `yaml:"trial"`
	Mail           mail.Config           `yaml:"mail"`
	AI             AIConfig              `yaml:"ai"`
	S3             S3Config              `yaml:"s3"`
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs   string `yaml:"logs"`
	Static string `yaml:"static"`
}

// EngineConfig points at the browser automation engine.
type EngineConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PaymentConfig holds payment gateway credentials and plan pricing.
// Amounts are in the smallest currency unit.
type PaymentConfig struct {
	KeyID     string           `yaml:"key_id"`
	KeySecret string           `yaml:"key_secret"`
	Currency  string           `yaml:"currency"`
	Plans     map[string]int64 `yaml:"plans"`
}

// TrialConfig bounds free-tier usage.
type TrialConfig struct {
	DailyMinutes int `yaml:"daily_minutes"`
	MaxDays      int `yaml:"max_days"`
	WindowDays   int `yaml:"window_days"`
}

// AIConfig configures the task refinement provider.
type AIConfig struct {
	Enable  bool   `yaml:"enable"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// S3Config configures the optional remote mirror for uploads.
type S3Config struct {
	Enable          bool   `yaml:"enable"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}
