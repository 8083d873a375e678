// Package config loads the servostep host configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"servostep/core"
	"servostep/host/serial"
	"servostep/observability/log"
)

const DefaultUpdateHz = 50.0

var (
	ErrNoServos      = errors.New("no servos configured")
	ErrDuplicateName = errors.New("duplicate servo name")
)

// Config is the top-level document.
type Config struct {
	Serial   SerialConfig  `yaml:"serial"`
	LogLevel string        `yaml:"log_level,omitempty"`
	UpdateHz float64       `yaml:"update_hz,omitempty"`
	Servos   []ServoConfig `yaml:"servos"`
	Drive    *DriveConfig  `yaml:"drive,omitempty"`
}

type SerialConfig struct {
	Device      string        `yaml:"device,omitempty"`
	Baud        int           `yaml:"baud,omitempty"`
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
}

// ServoConfig describes one servo. Either Step or SpeedDPS sets the step
// size; SpeedDPS is converted using the update frequency.
type ServoConfig struct {
	Name           string   `yaml:"name"`
	Pin            PinRef   `yaml:"pin"`
	MinAngle       *float64 `yaml:"min_angle,omitempty"`
	MaxAngle       *float64 `yaml:"max_angle,omitempty"`
	StartAngle     *float64 `yaml:"start_angle,omitempty"`
	Step           *float64 `yaml:"step,omitempty"`
	SpeedDPS       float64  `yaml:"speed_dps,omitempty"`
	CommandOnClamp *bool    `yaml:"command_on_clamp,omitempty"`
}

type DriveConfig struct {
	LeftPin      PinRef `yaml:"left_pin"`
	RightPin     PinRef `yaml:"right_pin"`
	SquareInputs bool   `yaml:"square_inputs,omitempty"`
	Mode         string `yaml:"mode,omitempty"`
}

// PinRef is a pin given either as a number or as a firmware pin name such
// as "gpio15".
type PinRef string

func (p *PinRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: pin must be a scalar", value.Line)
	}
	*p = PinRef(strings.TrimSpace(value.Value))
	return nil
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default is a single servo on pin 0 with the builtin limits.
func Default() *Config {
	cfg := &Config{
		Servos: []ServoConfig{{Name: "servo0", Pin: "0"}},
	}
	applyDefaults(cfg)
	return cfg
}

func float(v float64) *float64 { return &v }

func applyDefaults(cfg *Config) {
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = serial.DefaultBaud
	}
	if cfg.Serial.ReadTimeout == 0 {
		cfg.Serial.ReadTimeout = serial.DefaultReadTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = log.LevelInfo.String()
	}
	if cfg.UpdateHz == 0 {
		cfg.UpdateHz = DefaultUpdateHz
	}

	for i := range cfg.Servos {
		s := &cfg.Servos[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("servo%d", i)
		}
		if s.MinAngle == nil {
			s.MinAngle = float(core.DefaultMinAngle)
		}
		if s.MaxAngle == nil {
			s.MaxAngle = float(core.DefaultMaxAngle)
		}
		if s.StartAngle == nil {
			s.StartAngle = float(core.DefaultStartAngle)
		}
		if s.Step == nil && s.SpeedDPS == 0 {
			s.Step = float(core.DefaultStep)
		}
		if s.CommandOnClamp == nil {
			enabled := true
			s.CommandOnClamp = &enabled
		}
	}

	if cfg.Drive != nil && cfg.Drive.Mode == "" {
		cfg.Drive.Mode = core.ModeDisabled.String()
	}
}

// Validate rejects documents the host cannot run. Odd but usable servo
// values are left to the controller, which warns about them.
func (c *Config) Validate() error {
	if len(c.Servos) == 0 {
		return ErrNoServos
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !(c.UpdateHz > 0) {
		return fmt.Errorf("update_hz must be positive, got %v", c.UpdateHz)
	}

	seen := make(map[string]bool, len(c.Servos))
	for _, s := range c.Servos {
		if seen[s.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateName, s.Name)
		}
		seen[s.Name] = true
		if s.Pin == "" {
			return fmt.Errorf("servo %s: pin is required", s.Name)
		}
		if s.Step != nil && s.SpeedDPS != 0 {
			return fmt.Errorf("servo %s: step and speed_dps are mutually exclusive", s.Name)
		}
	}

	if c.Drive != nil {
		if c.Drive.LeftPin == "" || c.Drive.RightPin == "" {
			return errors.New("drive: left_pin and right_pin are required")
		}
		if _, err := core.ParseMode(c.Drive.Mode); err != nil {
			return fmt.Errorf("drive: %w", err)
		}
	}
	return nil
}

// SerialPort converts the serial section for serial.Open.
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return level
}

// ActuatorConfig returns the controller configuration for a servo stepped
// updateHz times per second.
func (s ServoConfig) ActuatorConfig(updateHz float64) core.Config {
	cfg := core.DefaultConfig()
	if s.MinAngle != nil {
		cfg.Min = *s.MinAngle
	}
	if s.MaxAngle != nil {
		cfg.Max = *s.MaxAngle
	}
	if s.StartAngle != nil {
		cfg.Start = *s.StartAngle
	}
	switch {
	case s.Step != nil:
		cfg.Step = *s.Step
	case s.SpeedDPS != 0:
		cfg.Step = core.StepFromUpdateFrequency(updateHz, s.SpeedDPS)
	}
	return cfg
}

// Options returns the controller options implied by the servo entry.
func (s ServoConfig) Options() []core.Option {
	var opts []core.Option
	if s.CommandOnClamp != nil {
		opts = append(opts, core.WithCommandOnClamp(*s.CommandOnClamp))
	}
	return opts
}
