// Package config loads the doorstep runtime configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	apperrors "github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const ErrCodeInvalidConfig = "CONFIG_INVALID"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the doorstep runtime configuration.
type Config struct {
	// DriverID keys the persisted delivery, one per driver device.
	DriverID      string             `yaml:"driver_id"`
	Storage       StorageConfig      `yaml:"storage"`
	ScenariosFile string             `yaml:"scenarios_file"`
	TripsFile     string             `yaml:"trips_file"`
	Orchestrator  OrchestratorConfig `yaml:"orchestrator"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is the snapshot directory for the file driver.
	Path  string `yaml:"path"`
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
}

// Cron parsers accepted by orchestrator.parser.
const (
	ParserStandard = "standard"
	ParserSeconds  = "seconds"
)

type OrchestratorConfig struct {
	// Tick is a cron expression, e.g. "@every 10s".
	Tick     string `yaml:"tick"`
	// Parser is "standard" (five fields) or "seconds" (leading seconds field).
	Parser   string `yaml:"parser"`
	// Timezone is an IANA name the tick schedule is evaluated in; empty is local time.
	Timezone string `yaml:"timezone"`

	FinalizeRetries int           `yaml:"finalize_retries"`
	RetryBase       time.Duration `yaml:"retry_base"`
	RetryMax        time.Duration `yaml:"retry_max"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	// Addr serves /metrics when set, e.g. ":9102".
	Addr string `yaml:"addr"`
}

// Default returns a configuration that runs fully in memory.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Parse decodes configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads YAML from r, applies defaults and validates.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every optional field left empty.
func (c *Config) SetDefaults() {
	if c.DriverID == "" {
		c.DriverID = "default"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Path == "" {
			c.Storage.Path = ".doorstep"
		}
	case DriverSQLite:
		if c.Storage.DSN == "" {
			c.Storage.DSN = "doorstep.db"
		}
		if c.Storage.Table == "" {
			c.Storage.Table = "deliveries"
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			c.Storage.RedisAddr = "localhost:6379"
		}
	}
	if c.Orchestrator.Tick == "" {
		c.Orchestrator.Tick = "@every 10s"
	}
	if c.Orchestrator.Parser == "" {
		c.Orchestrator.Parser = ParserStandard
	}
	c.Orchestrator.Parser = strings.ToLower(strings.TrimSpace(c.Orchestrator.Parser))
	if c.Orchestrator.FinalizeRetries == 0 {
		c.Orchestrator.FinalizeRetries = 3
	}
	if c.Orchestrator.RetryBase == 0 {
		c.Orchestrator.RetryBase = 500 * time.Millisecond
	}
	if c.Orchestrator.RetryMax == 0 {
		c.Orchestrator.RetryMax = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "doorstep"
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DriverID, validation.Required),
		validation.Field(&c.Storage),
		validation.Field(&c.Orchestrator),
		validation.Field(&c.Logging),
	)
	if err == nil {
		return nil
	}
	return apperrors.Wrap(err, apperrors.CategoryValidation, "invalid configuration").
		WithTextCode(ErrCodeInvalidConfig)
}

func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverMemory, DriverFile, DriverSQLite, DriverRedis)),
		validation.Field(&s.Path, validation.When(s.Driver == DriverFile, validation.Required)),
		validation.Field(&s.DSN, validation.When(s.Driver == DriverSQLite, validation.Required)),
		validation.Field(&s.RedisAddr, validation.When(s.Driver == DriverRedis, validation.Required)),
		validation.Field(&s.RedisDB, validation.Min(0)),
		validation.Field(&s.TTL, validation.Min(time.Duration(0))),
	)
}

func (o OrchestratorConfig) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Parser, validation.In(ParserStandard, ParserSeconds)),
		validation.Field(&o.Tick, validation.Required, validation.By(cronExpression(o.Parser))),
		validation.Field(&o.Timezone, validation.By(timezone)),
		validation.Field(&o.FinalizeRetries, validation.Min(0)),
		validation.Field(&o.RetryBase, validation.Min(time.Duration(0))),
		validation.Field(&o.RetryMax, validation.Min(o.RetryBase)),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "error", "fatal")),
		validation.Field(&l.Format, validation.In("console", "json")),
	)
}

func cronExpression(parser string) validation.RuleFunc {
	fields := rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor
	if parser == ParserSeconds {
		fields |= rcron.Second
	}
	p := rcron.NewParser(fields)
	return func(value any) error {
		expr, _ := value.(string)
		if expr == "" {
			return nil
		}
		if _, err := p.Parse(expr); err != nil {
			return fmt.Errorf("invalid cron expression: %v", err)
		}
		return nil
	}
}

func timezone(value any) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown timezone %q", name)
	}
	return nil
}

// Location resolves Timezone, local time when unset.
func (o OrchestratorConfig) Location() (*time.Location, error) {
	if o.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(o.Timezone)
}
