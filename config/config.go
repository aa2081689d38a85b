// Package config loads the actuator link configuration from YAML.
//
//	transport: i2c
//	i2c:
//	  device: /dev/i2c-1
//	  address: 0x55
//	timing:
//	  settle_delay: 50ms
//	polling:
//	  enabled: true
//	  interval: 2s
//	log:
//	  level: info
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"actuatorlink/host/bridge"
	"actuatorlink/host/i2c"
	"actuatorlink/host/serial"
	"actuatorlink/protocol"
)

// Transport kinds.
const (
	TransportI2C    = "i2c"
	TransportSerial = "serial"
	TransportSim    = "sim"
)

// Framing modes.
const (
	FramingFirstBrace = "first_brace"
	FramingBalanced   = "balanced"
)

// Config is the top-level configuration.
type Config struct {
	Transport string        `yaml:"transport"`
	I2C       I2CConfig     `yaml:"i2c"`
	Serial    SerialConfig  `yaml:"serial"`
	Timing    TimingConfig  `yaml:"timing"`
	Framing   string        `yaml:"framing"`
	Polling   PollingConfig `yaml:"polling"`
	Log       LogConfig     `yaml:"log"`
}

type I2CConfig struct {
	Device  string `yaml:"device"`
	Address uint16 `yaml:"address"`
}

type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// TimingConfig mirrors the timing fields of bridge.Config.
type TimingConfig struct {
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	TransmitTimeout time.Duration `yaml:"transmit_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ReceiveTimeout  time.Duration `yaml:"receive_timeout"`
	RawTimeout      time.Duration `yaml:"raw_timeout"`
}

type PollingConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File, when set, receives the log with size-based rotation.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.Transport == "" {
		cfg.Transport = TransportI2C
	}

	if cfg.I2C.Device == "" {
		cfg.I2C.Device = i2c.DefaultDevice
	}
	if cfg.I2C.Address == 0 {
		cfg.I2C.Address = protocol.DefaultAddress
	}

	serialDef := serial.DefaultConfig("/dev/ttyUSB0")
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = serialDef.Device
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = serialDef.Baud
	}
	if cfg.Serial.ReadTimeout == 0 {
		cfg.Serial.ReadTimeout = serialDef.ReadTimeout
	}

	def := bridge.DefaultConfig()
	if cfg.Timing.ProbeTimeout == 0 {
		cfg.Timing.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.Timing.TransmitTimeout == 0 {
		cfg.Timing.TransmitTimeout = def.TransmitTimeout
	}
	if cfg.Timing.SettleDelay == 0 {
		cfg.Timing.SettleDelay = def.SettleDelay
	}
	if cfg.Timing.ReceiveTimeout == 0 {
		cfg.Timing.ReceiveTimeout = def.ReceiveTimeout
	}
	if cfg.Timing.RawTimeout == 0 {
		cfg.Timing.RawTimeout = def.RawTimeout
	}

	if cfg.Framing == "" {
		cfg.Framing = FramingFirstBrace
	}

	if cfg.Polling.Interval == 0 {
		cfg.Polling.Interval = 2 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportI2C, TransportSerial, TransportSim:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.I2C.Address > 0x7F {
		errs = append(errs, fmt.Errorf("i2c address 0x%02x is not a 7-bit address", c.I2C.Address))
	}
	if c.Serial.Baud < 0 {
		errs = append(errs, fmt.Errorf("negative serial baud %d", c.Serial.Baud))
	}
	if c.Serial.ReadTimeout < serial.MinReadTimeout {
		errs = append(errs, fmt.Errorf("serial read_timeout %v is below %v", c.Serial.ReadTimeout, serial.MinReadTimeout))
	}
	for name, d := range map[string]time.Duration{
		"probe_timeout":    c.Timing.ProbeTimeout,
		"transmit_timeout": c.Timing.TransmitTimeout,
		"settle_delay":     c.Timing.SettleDelay,
		"receive_timeout":  c.Timing.ReceiveTimeout,
		"raw_timeout":      c.Timing.RawTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("negative timing.%s %v", name, d))
		}
	}
	switch c.Framing {
	case FramingFirstBrace, FramingBalanced:
	default:
		errs = append(errs, fmt.Errorf("unknown framing %q", c.Framing))
	}
	if c.Polling.Interval < 0 {
		errs = append(errs, fmt.Errorf("negative polling interval %v", c.Polling.Interval))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Bridge returns the bridge settings.
func (c *Config) Bridge() bridge.Config {
	return bridge.Config{
		Address:         c.I2C.Address,
		ProbeTimeout:    c.Timing.ProbeTimeout,
		TransmitTimeout: c.Timing.TransmitTimeout,
		SettleDelay:     c.Timing.SettleDelay,
		ReceiveTimeout:  c.Timing.ReceiveTimeout,
		RawTimeout:      c.Timing.RawTimeout,
	}
}

// Framer returns the reply framer selected by Framing.
func (c *Config) Framer() protocol.Framer {
	if c.Framing == FramingBalanced {
		return protocol.FrameBalanced
	}
	return protocol.Frame
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
