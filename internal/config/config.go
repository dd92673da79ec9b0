package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/thermowatch/internal/agent"
	"codeberg.org/mutker/thermowatch/internal/alarm"
	"codeberg.org/mutker/thermowatch/internal/buffer"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"codeberg.org/mutker/thermowatch/internal/metrics"
	"codeberg.org/mutker/thermowatch/internal/query"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel  = LogLevelInfo
	DefaultLogFormat = logger.FormatConsole

	DefaultListen          = ":4000"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = 1 << 20

	DefaultSweepInterval = time.Minute
	DefaultPollInterval  = 5 * time.Second
	DefaultTitle         = "Server Room Monitor"
)

type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	Server    ServerConfig     `mapstructure:"server"`
	Retention RetentionConfig  `mapstructure:"retention"`
	Alarm     alarm.Thresholds `mapstructure:"alarm"`
	Dashboard DashboardConfig  `mapstructure:"dashboard"`
	Metrics   metrics.Config   `mapstructure:"metrics"`
	Agent     agent.Config     `mapstructure:"agent"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	Level  LogLevel `mapstructure:"level"`
	Format string   `mapstructure:"format"`
	File   string   `mapstructure:"file"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type RetentionConfig struct {
	// Window is how long a sample is kept after ingestion.
	Window time.Duration `mapstructure:"window"`
	// DefaultQuery is used when a read names no window or an invalid one.
	DefaultQuery  time.Duration `mapstructure:"default_query"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type DashboardConfig struct {
	Title        string        `mapstructure:"title"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"log-level":             "log.level",
	"log-format":            "log.format",
	"log-file":              "log.file",
	"listen":                "server.listen",
	"retention":             "retention.window",
	"default-window":        "retention.default_query",
	"temperature-threshold": "alarm.temperature",
	"ambient-threshold":     "alarm.ambient",
	"metrics":               "metrics.enabled",
	"endpoint":              "agent.endpoint",
	"interval":              "agent.interval",
	"device":                "agent.device",
	"outbox":                "agent.outbox",
}

// BindFlags registers the flags understood by Load on fs. Call it once per
// command; Load only binds the flags that exist.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the TOML configuration file")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("log-format", DefaultLogFormat, "Log format (console, json)")
	fs.String("log-file", "", "Write logs to a rotated file instead of stdout")
}

// BindServerFlags registers the flags of the serve command.
func BindServerFlags(fs *pflag.FlagSet) {
	fs.String("listen", DefaultListen, "HTTP listen address")
	fs.Duration("retention", buffer.DefaultRetention, "How long samples are retained")
	fs.Duration("default-window", query.DefaultWindow, "Query window used when none is given")
	fs.Float64("temperature-threshold", alarm.DefaultTemperatureThreshold, "Alarm threshold for temperature in °C")
	fs.Float64("ambient-threshold", alarm.DefaultAmbientThreshold, "Alarm threshold for ambientTemp in °C")
	fs.Bool("metrics", true, "Expose Prometheus metrics")
}

// BindAgentFlags registers the flags of the agent command.
func BindAgentFlags(fs *pflag.FlagSet) {
	fs.String("endpoint", agent.DefaultEndpoint, "URL readings are posted to")
	fs.Duration("interval", agent.DefaultInterval, "Sampling interval")
	fs.Int("device", 0, "NVML index of the GPU to sample")
	fs.String("outbox", agent.DefaultOutbox, "Path of the store-and-forward database")
}

// Load reads configuration from defaults, the config file, the environment
// and flags, in increasing order of precedence, and validates the result.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix:   DefaultEnvPrefix,
		searchPaths: []string{"/etc", "."},
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		if err := bindFlags(v, o.flags); err != nil {
			return nil, err
		}
		if o.configPath == "" {
			if f := o.flags.Lookup("config"); f != nil {
				o.configPath = f.Value.String()
			}
		}
	}
	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfig(v, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err).WithMessage("failed to decode configuration")
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", string(DefaultLogLevel))
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.file", "")

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.max_body_bytes", DefaultMaxBodyBytes)

	v.SetDefault("retention.window", buffer.DefaultRetention)
	v.SetDefault("retention.default_query", query.DefaultWindow)
	v.SetDefault("retention.sweep_interval", DefaultSweepInterval)

	thresholds := alarm.DefaultThresholds()
	v.SetDefault("alarm.temperature", thresholds.Temperature)
	v.SetDefault("alarm.ambient", thresholds.Ambient)

	v.SetDefault("dashboard.title", DefaultTitle)
	v.SetDefault("dashboard.poll_interval", DefaultPollInterval)

	m := metrics.DefaultConfig()
	v.SetDefault("metrics.enabled", m.Enabled)
	v.SetDefault("metrics.path", m.Path)

	a := agent.DefaultConfig()
	v.SetDefault("agent.endpoint", a.Endpoint)
	v.SetDefault("agent.interval", a.Interval)
	v.SetDefault("agent.timeout", a.Timeout)
	v.SetDefault("agent.device", a.Device)
	v.SetDefault("agent.outbox", a.Outbox)
	v.SetDefault("agent.max_age", a.MaxAge)
	v.SetDefault("agent.batch_size", a.BatchSize)
	v.SetDefault("agent.pid_dir", a.PIDDir)
	v.SetDefault("agent.labels", map[string]string{})
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errFactory.Wrap(ErrBindFlags, err).WithData(name)
		}
	}
	return nil
}

func readConfig(v *viper.Viper, o *options) error {
	errFactory := errors.New()

	v.SetConfigType("toml")

	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(ErrReadConfig, err).WithData(o.configPath)
		}
		return nil
	}

	v.SetConfigName(DefaultConfigName)
	for _, p := range o.searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(ErrReadConfig, err)
	}
	return nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.Log.Level.IsValid() {
		return errFactory.WithData(ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Log.Format != logger.FormatConsole && c.Log.Format != logger.FormatJSON {
		return errFactory.WithMessage(ErrInvalidConfig, "log format must be console or json").WithData(c.Log.Format)
	}

	if c.Server.Listen == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "server listen address is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "server max_body_bytes must be positive").WithData(c.Server.MaxBodyBytes)
	}

	if c.Retention.Window <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "retention window must be positive").WithData(c.Retention.Window)
	}
	if c.Retention.DefaultQuery <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "default query window must be positive").WithData(c.Retention.DefaultQuery)
	}
	if c.Retention.DefaultQuery > c.Retention.Window {
		return errFactory.WithMessage(ErrInvalidConfig, "default query window must not exceed the retention window").WithData(c.Retention.DefaultQuery)
	}
	if c.Retention.SweepInterval <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "sweep interval must be positive").WithData(c.Retention.SweepInterval)
	}

	if c.Dashboard.PollInterval < time.Second {
		return errFactory.WithMessage(ErrInvalidConfig, "dashboard poll interval must be at least 1s").WithData(c.Dashboard.PollInterval)
	}

	if err := c.Metrics.Validate(); err != nil {
		return err
	}

	return c.Agent.Validate()
}

// LoggerOptions translates the log section for logger.Init.
func (c *Config) LoggerOptions() (logger.Options, error) {
	level, err := logger.ParseLevel(c.Log.Level.String())
	if err != nil {
		return logger.Options{}, err
	}
	return logger.Options{
		Level:     level,
		Format:    c.Log.Format,
		File:      c.Log.File,
		IsService: logger.IsService(),
	}, nil
}
