package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig holds every tunable of the relay process. Values come from the environment only.
type AppConfig struct {
	Port int `env:"PORT" envDefault:"10000"`

	TimeControls     []int         `env:"RELAY_TIME_CONTROLS" envDefault:"5,10,15" envSeparator:","`
	StallThreshold   time.Duration `env:"RELAY_STALL_THRESHOLD" envDefault:"2m"`
	NameMax          int           `env:"RELAY_NAME_MAX" envDefault:"20"`
	ChatMax          int           `env:"RELAY_CHAT_MAX" envDefault:"500"`
	SessionRetention time.Duration `env:"RELAY_SESSION_RETENTION" envDefault:"0s"`
	SweepInterval    time.Duration `env:"RELAY_SWEEP_INTERVAL" envDefault:"1m"`
	ValidateMoves    bool          `env:"RELAY_VALIDATE_MOVES" envDefault:"false"`

	SendBuffer     int           `env:"RELAY_SEND_BUFFER" envDefault:"256"`
	ReadTimeout    time.Duration `env:"RELAY_READ_TIMEOUT" envDefault:"0s"`
	PingInterval   time.Duration `env:"RELAY_PING_INTERVAL" envDefault:"30s"`
	AllowedOrigins []string      `env:"RELAY_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	RedisURL         string `env:"REDIS_URL"`
	DatabaseURL      string `env:"DATABASE_URL"`
	ResultWebhookURL string `env:"RESULT_WEBHOOK_URL"`

	MessagesDir string `env:"MESSAGES_DIR"`
}

// Load parses the environment and validates the result.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.ResultWebhookURL = strings.TrimSpace(c.ResultWebhookURL)
	c.MessagesDir = strings.TrimSpace(c.MessagesDir)

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	c.AllowedOrigins = origins
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if len(c.TimeControls) == 0 {
		return errors.New("RELAY_TIME_CONTROLS must list at least one value")
	}
	seen := make(map[int]bool, len(c.TimeControls))
	for _, tc := range c.TimeControls {
		if tc <= 0 {
			return fmt.Errorf("RELAY_TIME_CONTROLS: %d is not a positive number of minutes", tc)
		}
		if seen[tc] {
			return fmt.Errorf("RELAY_TIME_CONTROLS: duplicate value %d", tc)
		}
		seen[tc] = true
	}
	if c.StallThreshold <= 0 {
		return errors.New("RELAY_STALL_THRESHOLD must be positive")
	}
	if c.NameMax <= 0 {
		return errors.New("RELAY_NAME_MAX must be positive")
	}
	if c.ChatMax <= 0 {
		return errors.New("RELAY_CHAT_MAX must be positive")
	}
	if c.SessionRetention < 0 {
		return errors.New("RELAY_SESSION_RETENTION must not be negative")
	}
	if c.SessionRetention > 0 && c.SweepInterval <= 0 {
		return errors.New("RELAY_SWEEP_INTERVAL must be positive when retention is enabled")
	}
	if c.SendBuffer <= 0 {
		return errors.New("RELAY_SEND_BUFFER must be positive")
	}
	return nil
}

// Addr is the listen address; the relay always binds all interfaces.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}
