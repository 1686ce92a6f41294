package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Eventure server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Storage   StorageConfig   `yaml:"storage"`
	Mail      MailConfig      `yaml:"mail"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SecureCookies  bool     `yaml:"secure_cookies"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig selects the session backend.
type SessionsConfig struct {
	Backend   string `yaml:"backend"` // memory, redis
	TTL       string `yaml:"ttl"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// StorageConfig selects where uploaded media lives.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // local, s3
	LocalDir string `yaml:"local_dir"`
	BaseURL  string `yaml:"base_url"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	// S3Endpoint is set for S3-compatible stores such as MinIO.
	S3Endpoint string `yaml:"s3_endpoint"`
}

// MailConfig selects the outbound mail transport.
type MailConfig struct {
	Backend      string `yaml:"backend"` // log, smtp, ses
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SESRegion    string `yaml:"ses_region"`
}

// AuthConfig configures password reset tokens.
type AuthConfig struct {
	ResetSecret string `yaml:"reset_secret"`
	ResetTTL    string `yaml:"reset_ttl"`
	ResetURL    string `yaml:"reset_url"`
}

// EventsConfig configures the optional AMQP publisher. Empty URL disables it.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// RateLimitConfig limits auth endpoints per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    "15s",
			WriteTimeout:   "30s",
		},
		Database: DatabaseConfig{
			Path: "./eventure.db",
		},
		Sessions: SessionsConfig{
			Backend: "memory",
			TTL:     "24h",
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "./uploads",
			BaseURL:  "/media",
		},
		Mail: MailConfig{
			Backend:  "log",
			From:     "no-reply@eventure.local",
			SMTPPort: 587,
		},
		Auth: AuthConfig{
			ResetTTL: "1h",
			ResetURL: "http://localhost:3000/reset-password",
		},
		Events: EventsConfig{
			Exchange: "eventure.events",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("EVENTURE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("EVENTURE_RESET_SECRET"); v != "" {
		c.Auth.ResetSecret = v
	}
	if v := os.Getenv("EVENTURE_REDIS_ADDR"); v != "" {
		c.Sessions.Backend = "redis"
		c.Sessions.RedisAddr = v
	}
	if v := os.Getenv("EVENTURE_AMQP_URL"); v != "" {
		c.Events.AMQPURL = v
	}
	if v := os.Getenv("EVENTURE_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.SecureCookies = b
		}
	}
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.RedisAddr == "" {
			return errors.New("sessions.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown sessions.backend %q", c.Sessions.Backend)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir is required for the local backend")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Mail.Backend {
	case "log", "ses":
	case "smtp":
		if c.Mail.SMTPHost == "" {
			return errors.New("mail.smtp_host is required for the smtp backend")
		}
	default:
		return fmt.Errorf("unknown mail.backend %q", c.Mail.Backend)
	}

	for name, d := range map[string]string{
		"sessions.ttl":         c.Sessions.TTL,
		"auth.reset_ttl":       c.Auth.ResetTTL,
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	return nil
}

// SessionTTL returns the parsed session lifetime.
func (c *Config) SessionTTL() time.Duration { return mustDuration(c.Sessions.TTL) }

// ResetTTL returns the parsed password reset token lifetime.
func (c *Config) ResetTTL() time.Duration { return mustDuration(c.Auth.ResetTTL) }

// ReadTimeout returns the parsed HTTP read timeout.
func (c *Config) ReadTimeout() time.Duration { return mustDuration(c.Server.ReadTimeout) }

// WriteTimeout returns the parsed HTTP write timeout.
func (c *Config) WriteTimeout() time.Duration { return mustDuration(c.Server.WriteTimeout) }

// mustDuration is only called on values Validate has accepted.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
