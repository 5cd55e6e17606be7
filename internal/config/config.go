package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"whatsapp-panel-server/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DefaultJWTSecret is the development placeholder for jwt.secret
const DefaultJWTSecret = "your-secret-key"

// Duration is a time.Duration that reads "5m"-style strings or plain
// nanosecond numbers from JSON
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all configuration settings
type Config struct {
	Server struct {
		Port           int      `json:"port"`
		Host           string   `json:"host"`
		PublicURL      string   `json:"public_url"`
		AllowedOrigins []string `json:"allowed_origins"`
		// ForceHTTPS redirects plain HTTP requests; X-Forwarded-Proto is honoured
		ForceHTTPS bool `json:"force_https"`
	} `json:"server"`
	Database struct {
		Driver string `json:"driver"`
		DSN    string `json:"dsn"`
	} `json:"database"`
	JWT struct {
		// Secret is the Supabase project JWT secret used to verify access tokens
		Secret string `json:"secret"`
	} `json:"jwt"`
	Logging struct {
		Level string `json:"level"`
		Path  string `json:"path"`
	} `json:"logging"`
	Evolution struct {
		BaseURL       string   `json:"base_url"`
		APIKey        string   `json:"api_key"`
		Timeout       Duration `json:"timeout"`
		RatePerSecond float64  `json:"rate_per_second"`
	} `json:"evolution"`
	Gemini struct {
		APIKey string `json:"api_key"`
		Model  string `json:"model"`
	} `json:"gemini"`
	Resend struct {
		APIKey string `json:"api_key"`
		From   string `json:"from"`
	} `json:"resend"`
	Scheduler struct {
		Enabled     bool     `json:"enabled"`
		Interval    Duration `json:"interval"`
		BatchSize   int      `json:"batch_size"`
		MaxAttempts int      `json:"max_attempts"`
		RetryDelay  Duration `json:"retry_delay"`
	} `json:"scheduler"`
	Security struct {
		TOTPEncryptionKey string `json:"totp_encryption_key"`
		TOTPIssuer        string `json:"totp_issuer"`
		CronSecret        string `json:"cron_secret"`
		WebhookSecret     string `json:"webhook_secret"`
	} `json:"security"`
}

// LoadConfig loads configuration from a JSON file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	// Validate path to prevent directory traversal
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("config path must be absolute")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config file error: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("config path is not a regular file")
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("Failed to close config file", zap.Error(closeErr))
		}
	}()

	config := DefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Load builds the runtime configuration: defaults, then the optional JSON
// file, then the optional .env file and process environment
func Load(configPath, envFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setString("DB_DRIVER", &c.Database.Driver)
	setString("DB_URL", &c.Database.DSN)
	setString("SUPABASE_JWT_SECRET", &c.JWT.Secret)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_PATH", &c.Logging.Path)
	setString("PUBLIC_URL", &c.Server.PublicURL)
	setString("EVOLUTION_API_URL", &c.Evolution.BaseURL)
	setString("EVOLUTION_API_KEY", &c.Evolution.APIKey)
	setString("GEMINI_API_KEY", &c.Gemini.APIKey)
	setString("GEMINI_MODEL", &c.Gemini.Model)
	setString("RESEND_API_KEY", &c.Resend.APIKey)
	setString("RESEND_FROM", &c.Resend.From)
	setString("TOTP_ENCRYPTION_KEY", &c.Security.TOTPEncryptionKey)
	setString("CRON_SECRET", &c.Security.CronSecret)
	setString("WEBHOOK_SECRET", &c.Security.WebhookSecret)

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Server.Port = port
	}

	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}

	if v := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
		}
		c.Scheduler.Enabled = enabled
	}

	if v := strings.TrimSpace(os.Getenv("SCHEDULER_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULER_INTERVAL: %w", err)
		}
		c.Scheduler.Interval = Duration(d)
	}

	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("invalid server port")
	}
	if c.Database.Driver != DriverSQLite && c.Database.Driver != DriverPostgres {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return errors.New("scheduler max_attempts must be at least 1")
	}
	if c.Scheduler.RetryDelay <= 0 {
		return errors.New("scheduler retry_delay must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	if key := c.Security.TOTPEncryptionKey; key != "" && len(key) != 32 {
		return errors.New("TOTP encryption key must be 32 bytes")
	}
	// a Postgres deployment is a real one: no placeholder secrets
	if c.Database.Driver == DriverPostgres {
		if c.JWT.Secret == DefaultJWTSecret {
			return errors.New("JWT secret must be changed from the default")
		}
		if c.Security.TOTPEncryptionKey == "" {
			return errors.New("TOTP encryption key is required with the pgx driver")
		}
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 8080
	config.Server.Host = "localhost"
	config.Server.PublicURL = "http://localhost:8080"
	config.Server.AllowedOrigins = []string{"http://localhost:5173"}
	config.Database.Driver = DriverSQLite
	config.Database.DSN = "file:panel.db?cache=shared&mode=rwc&_fk=1"
	config.JWT.Secret = DefaultJWTSecret // This should be changed in production
	config.Logging.Level = "info"
	config.Logging.Path = "server.log"
	config.Evolution.BaseURL = "http://localhost:8081"
	config.Evolution.Timeout = Duration(15 * time.Second)
	config.Evolution.RatePerSecond = 5
	config.Gemini.Model = "gemini-1.5-flash"
	config.Resend.From = "Panel <no-reply@example.com>"
	config.Scheduler.Enabled = true
	config.Scheduler.Interval = Duration(time.Minute)
	config.Scheduler.BatchSize = 50
	config.Scheduler.MaxAttempts = 3
	config.Scheduler.RetryDelay = Duration(5 * time.Minute)
	config.Security.TOTPIssuer = "WhatsApp Panel"
	return config
}
