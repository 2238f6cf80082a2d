package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"enigh/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the complete application configuration.
// Every field is read from ENIGH_<NAME>; DATABASE_URL is also accepted unprefixed.
type Config struct {
	BaseDir    string `envconfig:"BASE_DIR"`
	DataDir    string `envconfig:"DATA_DIR" default:"ENIGH" validate:"required"`
	OutputsDir string `envconfig:"OUTPUTS_DIR" default:"outputs" validate:"required"`
	Year       int    `envconfig:"YEAR" default:"2024" validate:"min=1984,max=2100"`

	Port    string `envconfig:"PORT" default:"8501" validate:"required,numeric"`
	GinMode string `envconfig:"GIN_MODE" default:"release" validate:"oneof=debug release test"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console" validate:"oneof=console json"`

	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"30m" validate:"min=1s"`
	MaxSessions   int           `envconfig:"MAX_SESSIONS" default:"500" validate:"min=1"`
	MaxCategories int           `envconfig:"MAX_CATEGORIES" default:"50" validate:"min=1"`
	MaxPoints     int           `envconfig:"MAX_POINTS" default:"5000" validate:"min=10"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("ENIGH", cfg); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "failed to read environment"))
	}

	if err := cfg.resolveBaseDir(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration that Load produces with an empty environment,
// rooted at baseDir.
func Default(baseDir string) *Config {
	return &Config{
		BaseDir:       baseDir,
		DataDir:       "ENIGH",
		OutputsDir:    "outputs",
		Year:          2024,
		Port:          "8501",
		GinMode:       "release",
		LogLevel:      "info",
		LogFormat:     "console",
		SessionTTL:    30 * time.Minute,
		MaxSessions:   500,
		MaxCategories: 50,
		MaxPoints:     5000,
	}
}

// Validate checks the struct tags of the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "configuration validation failed"))
	}
	return nil
}

func (c *Config) resolveBaseDir() error {
	if c.BaseDir != "" {
		abs, err := filepath.Abs(c.BaseDir)
		if err != nil {
			return errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "invalid base dir %q", c.BaseDir))
		}
		c.BaseDir = abs
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "failed to resolve working directory")
	}
	c.BaseDir = wd
	return nil
}

// DataRoot is the directory holding one folder per survey year
func (c *Config) DataRoot() string {
	return c.resolve(c.DataDir)
}

// YearDir is the folder of a survey year
func (c *Config) YearDir(year int) string {
	return filepath.Join(c.DataRoot(), strconv.Itoa(year))
}

// OutputsRoot is the folder holding derived tables
func (c *Config) OutputsRoot() string {
	return c.resolve(c.OutputsDir)
}

// OutputPath joins a file name onto the outputs folder
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.OutputsRoot(), name)
}

// Addr is the listen address of the dashboard
func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.BaseDir, dir)
}
