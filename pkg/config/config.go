package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/profile"
	"github.com/srg/blemu/internal/rotation"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvLogLevel  = "BLEMU_LOG_LEVEL"
	EnvLocalName = "BLEMU_LOCAL_NAME"
)

// ErrInvalidConfig is matched by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel        string        `yaml:"log_level" default:"info"`
	LocalName       string        `yaml:"local_name" default:"Peripheral Emulator"`
	PrimeMode       string        `yaml:"prime_mode" default:"broadcast"`
	AdvertiseSettle time.Duration `yaml:"advertise_settle" default:"500ms"`

	Battery     BatteryConfig     `yaml:"battery"`
	HeartRate   HeartRateConfig   `yaml:"heart_rate"`
	Thermometer ThermometerConfig `yaml:"thermometer"`
	Proximity   ProximityConfig   `yaml:"proximity"`
}

// BatteryConfig is the initial battery reading.
type BatteryConfig struct {
	Level uint8 `yaml:"level" default:"50"`
}

// HeartRateConfig is the initial heart rate reading.
type HeartRateConfig struct {
	BPM            uint16 `yaml:"bpm" default:"50"`
	SensorContact  uint8  `yaml:"sensor_contact"`
	SensorLocation uint8  `yaml:"sensor_location"`
}

// ThermometerConfig is the initial thermometer reading. Type 0 omits the
// temperature type field.
type ThermometerConfig struct {
	Celsius    float64 `yaml:"celsius" default:"36.4"`
	Fahrenheit bool    `yaml:"fahrenheit"`
	Type       uint8   `yaml:"type"`
	Interval   uint16  `yaml:"interval" default:"1"`
}

// ProximityConfig configures the rotating proximity identifier.
// RotationInterval accepts a Go duration ("10m") or a cron expression; "", "0" and "off" disable rotation.
type ProximityConfig struct {
	RotationInterval string `yaml:"rotation_interval" default:"10m"`
	Metadata         bool   `yaml:"metadata" default:"true"`
	MajorVersion     uint8  `yaml:"major_version" default:"1"`
	MinorVersion     uint8  `yaml:"minor_version"`
	TxPowerMin       int8   `yaml:"tx_power_min" default:"-90"`
	TxPowerMax       int8   `yaml:"tx_power_max" default:"-50"`
	NotifyOnRotate   bool   `yaml:"notify_on_rotate"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last and the result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides copies non-empty environment overrides into cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLocalName); v != "" {
		cfg.LocalName = v
	}
}

// Validate rejects values the emulator cannot serve.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		add(fmt.Errorf("log_level: %w", err))
	}
	if strings.TrimSpace(c.LocalName) == "" {
		add(errors.New("local_name must not be empty"))
	}
	if _, err := peripheral.ParsePrimeMode(c.PrimeMode); err != nil {
		add(fmt.Errorf("prime_mode: %w", err))
	}
	if c.AdvertiseSettle < 0 {
		add(fmt.Errorf("advertise_settle must not be negative, got %s", c.AdvertiseSettle))
	}

	opts := c.ProfileOptions()
	add(opts.Battery.Validate())
	add(opts.HeartRate.Validate())
	add(opts.SensorLocation.Validate())
	add(opts.Temperature.Validate())
	add(opts.Interval.Validate())
	add(opts.Proximity.Validate())

	switch codec.SensorContact(c.HeartRate.SensorContact) {
	case codec.SensorContactUnsupported, codec.SensorContactNotDetected, codec.SensorContactDetected:
	default:
		add(fmt.Errorf("heart_rate.sensor_contact must be 0, 2 or 3, got %d", c.HeartRate.SensorContact))
	}
	if c.Thermometer.Type > uint8(codec.TemperatureTypeTympanum) {
		add(fmt.Errorf("thermometer.type must be 0..%d, got %d", codec.TemperatureTypeTympanum, c.Thermometer.Type))
	}
	if c.Proximity.TxPowerMin > c.Proximity.TxPowerMax {
		add(fmt.Errorf("proximity.tx_power_min %d exceeds tx_power_max %d", c.Proximity.TxPowerMin, c.Proximity.TxPowerMax))
	}
	if _, err := c.RotationSchedule(); err != nil {
		add(fmt.Errorf("proximity.rotation_interval: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Level returns the parsed log level, InfoLevel when unparsable.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ProfileOptions converts the initial readings into profile options.
func (c *Config) ProfileOptions() profile.Options {
	battery := codec.BatteryLevel(c.Battery.Level)
	hr := codec.HeartRateMeasurement{
		BPM:           c.HeartRate.BPM,
		SensorContact: codec.SensorContact(c.HeartRate.SensorContact),
	}
	location := codec.BodySensorLocation(c.HeartRate.SensorLocation)

	temp := codec.TemperatureMeasurement{
		Celsius:    c.Thermometer.Celsius,
		Fahrenheit: c.Thermometer.Fahrenheit,
	}
	if c.Thermometer.Type != 0 {
		t := codec.TemperatureType(c.Thermometer.Type)
		temp.Type = &t
	}
	interval := codec.MeasurementInterval(c.Thermometer.Interval)

	prox := codec.NewProximityIdentifier(c.Proximity.Metadata)
	prox.MajorVersion = c.Proximity.MajorVersion
	prox.MinorVersion = c.Proximity.MinorVersion

	return profile.Options{
		Battery:        &battery,
		HeartRate:      &hr,
		SensorLocation: &location,
		Temperature:    &temp,
		Interval:       &interval,
		Proximity:      &prox,
		TxPower:        codec.UniformTxPower{Min: c.Proximity.TxPowerMin, Max: c.Proximity.TxPowerMax},
	}
}

// ServerOptions converts the configuration into server options.
func (c *Config) ServerOptions(logger *logrus.Logger) peripheral.Options {
	mode, err := peripheral.ParsePrimeMode(c.PrimeMode)
	if err != nil {
		mode = peripheral.PrimeBroadcast
	}
	return peripheral.Options{
		LocalName:      c.LocalName,
		PrimeMode:      mode,
		NotifyOnRotate: c.Proximity.NotifyOnRotate,
		Logger:         logger,
	}
}

// RotationSchedule parses the proximity rotation interval. A nil schedule disables rotation.
func (c *Config) RotationSchedule() (cron.Schedule, error) {
	switch strings.ToLower(strings.TrimSpace(c.Proximity.RotationInterval)) {
	case "", "0", "off", "none":
		return nil, nil
	}
	return rotation.ParseSchedule(c.Proximity.RotationInterval)
}
