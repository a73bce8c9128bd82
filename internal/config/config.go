package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds gateway configuration values.
type Config struct {
	ControlAddr       string        `mapstructure:"control_addr" yaml:"control_addr" validate:"required,hostname_port"`
	VoiceAddr         string        `mapstructure:"voice_addr" yaml:"voice_addr" validate:"required,hostname_port"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr" validate:"omitempty,hostname_port"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path" validate:"required"`
	BlobDir           string        `mapstructure:"blob_dir" yaml:"blob_dir" validate:"required"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn warning error disabled"`
	MaxRecordBytes    int           `mapstructure:"max_record_bytes" yaml:"max_record_bytes" validate:"gt=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	PasswordCost      int           `mapstructure:"password_cost" yaml:"password_cost" validate:"gte=0,lte=31"`
	Voice             VoiceConfig   `mapstructure:"voice" yaml:"voice"`
}

// VoiceConfig tunes the UDP relay.
type VoiceConfig struct {
	// IdleTimeout evicts endpoints that have been silent this long. Zero keeps
	// every endpoint until restart.
	IdleTimeout   time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gte=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ControlAddr:       ":8080",
		VoiceAddr:         ":8081",
		HTTPAddr:          ":8082",
		DatabasePath:      "termicomm_server.db",
		BlobDir:           "uploads",
		LogLevel:          "info",
		MaxRecordBytes:    8 << 20,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		PasswordCost:      10,
		Voice: VoiceConfig{
			SweepInterval: 10 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ControlAddr != "" {
		c.ControlAddr = other.ControlAddr
	}
	if other.VoiceAddr != "" {
		c.VoiceAddr = other.VoiceAddr
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.BlobDir != "" {
		c.BlobDir = other.BlobDir
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxRecordBytes != 0 {
		c.MaxRecordBytes = other.MaxRecordBytes
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.PasswordCost != 0 {
		c.PasswordCost = other.PasswordCost
	}
	if other.Voice.IdleTimeout != 0 {
		c.Voice.IdleTimeout = other.Voice.IdleTimeout
	}
	if other.Voice.SweepInterval != 0 {
		c.Voice.SweepInterval = other.Voice.SweepInterval
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
