package config

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Legacy line format:
//
//	# comment
//	CONTROL_INTERVAL = 1000
//	TEMPERATURE_SENSOR_PATH.0 = /sys/class/drm/card0/device/hwmon/hwmon2/temp1_input
//	BASE_CONTROL_PWM.0 = 70
//
// An attribute without ".N" applies to index 0.
var (
	legacyCommentOrEmpty = regexp.MustCompile(`^\s*(#.*)?$`)
	legacyAttrIdxValue   = regexp.MustCompile(`^\s*([_A-Za-z]+)(?:\.(\d+))?\s*=\s*(.*?)\s*$`)
)

const maxLegacyIndex = 255

func parseLegacy(src string) (Config, error) {
	var cfg Config
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if legacyCommentOrEmpty.MatchString(line) {
			continue
		}
		m := legacyAttrIdxValue.FindStringSubmatch(line)
		if m == nil {
			return Config{}, invalid(fmt.Sprintf("line %d", lineNo), "is not of the form ATTRIBUTE[.N] = value")
		}
		attr, value := strings.ToUpper(m[1]), m[3]
		idx := 0
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil || n > maxLegacyIndex {
				return Config{}, invalid(fmt.Sprintf("line %d", lineNo), "bad index %q", m[2])
			}
			idx = n
		}
		if err := applyLegacy(&cfg, attr, idx, value); err != nil {
			return Config{}, invalid(fmt.Sprintf("line %d", lineNo), "%s: %v", attr, err)
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyLegacy(cfg *Config, attr string, idx int, value string) error {
	switch attr {
	case "LOG_TRESHOLD", "LOG_THRESHOLD":
		cfg.LogLevel = value
		return nil
	case "CONTROL_INTERVAL":
		ms, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.ControlInterval = time.Duration(ms) * time.Millisecond
		return nil
	case "TEMPERATURE_SENSOR_PATH":
		cfg.TemperatureSensors = growStrings(cfg.TemperatureSensors, idx)
		cfg.TemperatureSensors[idx] = value
		return nil
	case "PWM_ACTUATOR_PATH":
		cfg.PWMActuators = growStrings(cfg.PWMActuators, idx)
		cfg.PWMActuators[idx] = value
		return nil
	}

	field, ok := legacyControllerFields[attr]
	if !ok {
		// Unknown attributes are ignored so newer files still load.
		return nil
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return err
	}
	for len(cfg.Controllers) <= idx {
		cfg.Controllers = append(cfg.Controllers, DefaultControllerConfig())
	}
	field(&cfg.Controllers[idx], uint(n))
	return nil
}

var legacyControllerFields = map[string]func(*ControllerConfig, uint){
	"TEMPERATURE_SENSOR_INDEX":        func(c *ControllerConfig, v uint) { c.TemperatureSensor = int(v) },
	"PWM_ACTUATOR_INDEX":              func(c *ControllerConfig, v uint) { c.PWMActuator = int(v) },
	"UPWARD_TEMPERATURE_HYSTERESIS":   func(c *ControllerConfig, v uint) { c.UpwardHysteresis = v },
	"DOWNWARD_TEMPERATURE_HYSTERESIS": func(c *ControllerConfig, v uint) { c.DownwardHysteresis = v },
	"BASE_CONTROL_TEMPERATURE":        func(c *ControllerConfig, v uint) { c.Base.Temp = v },
	"BASE_CONTROL_PWM":                func(c *ControllerConfig, v uint) { c.Base.PWM = v },
	"LOW_CONTROL_TEMPERATURE":         func(c *ControllerConfig, v uint) { c.Low.Temp = v },
	"LOW_CONTROL_PWM":                 func(c *ControllerConfig, v uint) { c.Low.PWM = v },
	"HIGH_CONTROL_TEMPERATURE":        func(c *ControllerConfig, v uint) { c.High.Temp = v },
	"HIGH_CONTROL_PWM":                func(c *ControllerConfig, v uint) { c.High.PWM = v },
}

func growStrings(s []string, idx int) []string {
	for len(s) <= idx {
		s = append(s, "")
	}
	return s
}
