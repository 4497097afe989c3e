package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"amdgpu-fanctrl/internal/fancontrol"
	"amdgpu-fanctrl/internal/logging"
)

// OnTickError values.
const (
	TickErrorAbort = "abort"
	TickErrorSkip  = "skip"
)

const DefaultControlInterval = fancontrol.DefaultControlInterval

// MinControlInterval keeps the daemon from rewriting sysfs files in a busy
// loop.
const MinControlInterval = 10 * time.Millisecond

// Config is the daemon configuration.
type Config struct {
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ControlInterval time.Duration `yaml:"control_interval"`
	OnTickError     string        `yaml:"on_tick_error"`
	MetricsTextfile string        `yaml:"metrics_textfile"`

	TemperatureSensors []string           `yaml:"temperature_sensors"`
	PWMActuators       []string           `yaml:"pwm_actuators"`
	Controllers        []ControllerConfig `yaml:"controllers"`
}

// ControlPoint is one anchor of a fan curve.
type ControlPoint struct {
	Temp uint `yaml:"temp"`
	PWM  uint `yaml:"pwm"`
}

// ControllerConfig binds a sensor index, an actuator index and a curve.
type ControllerConfig struct {
	TemperatureSensor  int          `yaml:"temperature_sensor"`
	PWMActuator        int          `yaml:"pwm_actuator"`
	UpwardHysteresis   uint         `yaml:"upward_hysteresis"`
	DownwardHysteresis uint         `yaml:"downward_hysteresis"`
	Base               ControlPoint `yaml:"base"`
	Low                ControlPoint `yaml:"low"`
	High               ControlPoint `yaml:"high"`
}

// DefaultControllerConfig returns the curve used for every field a file
// leaves out.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		UpwardHysteresis:   500,
		DownwardHysteresis: 3000,
		Base:               ControlPoint{Temp: 40000, PWM: 70},
		Low:                ControlPoint{Temp: 45000, PWM: 57},
		High:               ControlPoint{Temp: 95000, PWM: 255},
	}
}

// UnmarshalYAML fills omitted fields with DefaultControllerConfig values.
func (c *ControllerConfig) UnmarshalYAML(n *yaml.Node) error {
	type plain ControllerConfig
	p := plain(DefaultControllerConfig())
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = ControllerConfig(p)
	return nil
}

// ConfigurationError reports an invalid setting.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + " " + e.Msg
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Load reads path. Files ending in .yaml or .yml are YAML, anything else is
// read in the KEY[.N] = value line format.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	default:
		cfg, err = parseLegacy(string(b))
		if err != nil {
			return Config{}, err
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ControlInterval == 0 {
		cfg.ControlInterval = DefaultControlInterval
	}
	if cfg.OnTickError == "" {
		cfg.OnTickError = TickErrorAbort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
}

// Validate checks everything the control engine relies on.
func (cfg Config) Validate() error {
	if cfg.ControlInterval <= 0 {
		return invalid("control_interval", "must be > 0")
	}
	if cfg.ControlInterval < MinControlInterval {
		return invalid("control_interval", "must be at least %s", MinControlInterval)
	}
	switch cfg.OnTickError {
	case TickErrorAbort, TickErrorSkip:
	default:
		return invalid("on_tick_error", "must be %q or %q", TickErrorAbort, TickErrorSkip)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "console", "json":
	default:
		return invalid("log_format", "must be 'console' or 'json'")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return invalid("log_level", "%q is not a log level", cfg.LogLevel)
	}
	if len(cfg.Controllers) == 0 {
		return invalid("controllers", "is required")
	}
	for i, c := range cfg.Controllers {
		field := fmt.Sprintf("controllers[%d]", i)
		if c.TemperatureSensor < 0 || c.TemperatureSensor >= len(cfg.TemperatureSensors) {
			return invalid(field+".temperature_sensor", "index %d out of range", c.TemperatureSensor)
		}
		if cfg.TemperatureSensors[c.TemperatureSensor] == "" {
			return invalid(field+".temperature_sensor", "refers to an empty path")
		}
		if c.PWMActuator < 0 || c.PWMActuator >= len(cfg.PWMActuators) {
			return invalid(field+".pwm_actuator", "index %d out of range", c.PWMActuator)
		}
		if cfg.PWMActuators[c.PWMActuator] == "" {
			return invalid(field+".pwm_actuator", "refers to an empty path")
		}
		if c.Base.Temp > c.Low.Temp {
			return invalid(field, "base.temp must not exceed low.temp")
		}
		if c.Low.Temp > c.High.Temp {
			return invalid(field, "low.temp must not exceed high.temp")
		}
	}
	return nil
}

// SearchPaths lists the locations Find tries, most specific first.
func SearchPaths() []string {
	var paths []string
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		paths = append(paths, filepath.Join(dir, "amdgpu-fanctrl.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "amdgpu-fanctrl.yaml"))
	}
	return append(paths, "/etc/amdgpu-fanctrl.yaml", "/etc/amdgpu-fanctrl.conf")
}

// Find returns the first existing file among paths.
func Find(paths []string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no configuration file found (tried %s)", strings.Join(paths, ", "))
}

// LogSummary logs the effective configuration.
func (cfg Config) LogSummary(logger logr.Logger) {
	logger.Info("Configuration",
		"controlInterval", cfg.ControlInterval,
		"onTickError", cfg.OnTickError,
		"logLevel", cfg.LogLevel,
		"metricsTextfile", cfg.MetricsTextfile)
	for i, p := range cfg.TemperatureSensors {
		logger.Info("Temperature sensor", "index", i, "path", p)
	}
	for i, p := range cfg.PWMActuators {
		logger.Info("PWM actuator", "index", i, "path", p)
	}
	for i, c := range cfg.Controllers {
		logger.Info("Controller", "index", i,
			"temperatureSensor", c.TemperatureSensor,
			"pwmActuator", c.PWMActuator,
			"upwardHysteresis", c.UpwardHysteresis,
			"downwardHysteresis", c.DownwardHysteresis,
			"base", c.Base, "low", c.Low, "high", c.High)
	}
}
