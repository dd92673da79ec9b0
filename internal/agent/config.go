package agent

import (
	"net/url"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
)

const (
	DefaultEndpoint  = "http://localhost:4000/data"
	DefaultInterval  = 5 * time.Second
	DefaultTimeout   = 5 * time.Second
	DefaultMaxAge    = 3 * time.Hour
	DefaultBatchSize = 50
	DefaultOutbox    = "/var/lib/thermowatch/outbox.db"
	DefaultPIDDir    = "/run/thermowatch"
)

// Config controls the sampling agent.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Device is the NVML index of the GPU to sample.
	Device int `mapstructure:"device"`

	// Outbox is the sqlite file holding readings not yet delivered.
	Outbox    string        `mapstructure:"outbox"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	BatchSize int           `mapstructure:"batch_size"`

	PIDDir string `mapstructure:"pid_dir"`

	// Labels are copied into every record, e.g. room = "server-room-1".
	Labels map[string]string `mapstructure:"labels"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		Interval:  DefaultInterval,
		Timeout:   DefaultTimeout,
		Outbox:    DefaultOutbox,
		MaxAge:    DefaultMaxAge,
		BatchSize: DefaultBatchSize,
		PIDDir:    DefaultPIDDir,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return errFactory.Wrap(ErrInvalidConfig, err).WithMessage("invalid agent endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errFactory.WithMessage(ErrInvalidConfig, "agent endpoint must be http or https").WithData(c.Endpoint)
	}
	if c.Interval <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "agent interval must be positive").WithData(c.Interval)
	}
	if c.Timeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "agent timeout must be positive").WithData(c.Timeout)
	}
	if c.Device < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "agent device index must not be negative").WithData(c.Device)
	}
	if c.Outbox == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "agent outbox path is required")
	}
	if c.MaxAge <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "agent max_age must be positive").WithData(c.MaxAge)
	}
	if c.BatchSize <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "agent batch_size must be positive").WithData(c.BatchSize)
	}
	return nil
}
