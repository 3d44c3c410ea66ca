// Package config loads daemon configuration from a TOML file
// (lumactl.toml), environment, and command-line flags. Flags override
// file values; file values override defaults.
package config

import (
	"os"

	"codeberg.org/mutker/lumactl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval            = 2
	DefaultLogLevel            = "info"
	DefaultWavelength          = 5.8e-9 // 5.8nm EUV
	DefaultMaxPower            = 5.0e-9 // 5nW
	DefaultStabilityTarget     = 0.01
	DefaultWarmupTime          = 30.0
	DefaultCalibrationInterval = 3600.0

	// EnvConfigFile overrides the config file search path when set.
	EnvConfigFile = "LUMACTL_CONFIG"
)

type Config struct {
	// Light source parameters
	Wavelength          float64 `mapstructure:"wavelength"`
	MaxPower            float64 `mapstructure:"max_power"`
	StabilityTarget     float64 `mapstructure:"stability_target"`
	WarmupTime          float64 `mapstructure:"warmup_time"`
	CalibrationInterval float64 `mapstructure:"calibration_interval"`

	// Optional emission started at boot (0 = stay in Ready)
	EmitPower    float64 `mapstructure:"emit_power"`
	EmitDuration float64 `mapstructure:"emit_duration"`

	// Service behavior
	Interval  int    `mapstructure:"interval"`
	LogLevel  string `mapstructure:"log_level"`
	Telemetry bool   `mapstructure:"telemetry"`
	Database  string `mapstructure:"database"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("lumactl", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Int("interval", DefaultInterval, "Seconds between status updates")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("telemetry", false, "Enable telemetry recording")
	fs.String("database", "", "Path to the telemetry database")
	fs.Float64("emit-power", 0, "Start an emission at this power (watts) after calibration")
	fs.Float64("emit-duration", 0, "Bounded emission duration in seconds (0 = continuous)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"interval":      "interval",
		"log_level":     "log-level",
		"telemetry":     "telemetry",
		"database":      "database",
		"emit_power":    "emit-power",
		"emit_duration": "emit-duration",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wavelength", DefaultWavelength)
	v.SetDefault("max_power", DefaultMaxPower)
	v.SetDefault("stability_target", DefaultStabilityTarget)
	v.SetDefault("warmup_time", DefaultWarmupTime)
	v.SetDefault("calibration_interval", DefaultCalibrationInterval)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
}

func readConfigFile(v *viper.Viper) error {
	errFactory := errors.New()

	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}

		return nil
	}

	v.SetConfigName("lumactl")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if !isValidLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.MaxPower <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max_power must be positive")
	}
	if c.StabilityTarget <= 0 || c.StabilityTarget > 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "stability_target must be in (0, 1]")
	}
	if c.WarmupTime < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "warmup_time cannot be negative")
	}
	if c.CalibrationInterval < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "calibration_interval cannot be negative")
	}
	if c.EmitPower < 0 || c.EmitPower > c.MaxPower {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "emit_power out of range")
	}
	if c.EmitDuration < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "emit_duration cannot be negative")
	}
	if c.Telemetry && c.Database == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "telemetry enabled but no database path set")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
