package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

const minimalYAML = `
temperature_sensors: [/sys/hwmon/temp1_input]
pwm_actuators: [/sys/hwmon/pwm1]
controllers:
  - temperature_sensor: 0
    pwm_actuator: 0
`

func TestLoad_YAMLDefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "cfg.yaml", minimalYAML))
	require.NoError(t, err)

	require.Equal(t, time.Second, cfg.ControlInterval)
	require.Equal(t, TickErrorAbort, cfg.OnTickError)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "console", cfg.LogFormat)
	require.Len(t, cfg.Controllers, 1)
	require.Equal(t, DefaultControllerConfig(), cfg.Controllers[0])
}

func TestLoad_YAMLPartialCurveKeepsDefaults(t *testing.T) {
	body := `
control_interval: 250ms
temperature_sensors: [/a, /b]
pwm_actuators: [/p]
controllers:
  - temperature_sensor: 1
    pwm_actuator: 0
    upward_hysteresis: 1000
    high: {temp: 90000, pwm: 200}
`
	cfg, err := Load(writeTempConfig(t, "cfg.yml", body))
	require.NoError(t, err)

	require.Equal(t, 250*time.Millisecond, cfg.ControlInterval)
	c := cfg.Controllers[0]
	require.Equal(t, 1, c.TemperatureSensor)
	require.Equal(t, uint(1000), c.UpwardHysteresis)
	require.Equal(t, uint(3000), c.DownwardHysteresis)
	require.Equal(t, ControlPoint{Temp: 40000, PWM: 70}, c.Base)
	require.Equal(t, ControlPoint{Temp: 90000, PWM: 200}, c.High)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "NoControllers",
			body: "temperature_sensors: [/a]\npwm_actuators: [/p]\n",
			want: "controllers is required",
		},
		{
			name: "SensorIndexOutOfRange",
			body: "temperature_sensors: [/a]\npwm_actuators: [/p]\ncontrollers:\n  - temperature_sensor: 1\n",
			want: "controllers[0].temperature_sensor index 1 out of range",
		},
		{
			name: "ActuatorIndexOutOfRange",
			body: "temperature_sensors: [/a]\npwm_actuators: []\ncontrollers:\n  - temperature_sensor: 0\n",
			want: "controllers[0].pwm_actuator index 0 out of range",
		},
		{
			name: "EmptyPath",
			body: "temperature_sensors: ['']\npwm_actuators: [/p]\ncontrollers:\n  - {}\n",
			want: "controllers[0].temperature_sensor refers to an empty path",
		},
		{
			name: "BaseAboveLow",
			body: "temperature_sensors: [/a]\npwm_actuators: [/p]\ncontrollers:\n  - base: {temp: 50000, pwm: 70}\n",
			want: "controllers[0] base.temp must not exceed low.temp",
		},
		{
			name: "LowAboveHigh",
			body: "temperature_sensors: [/a]\npwm_actuators: [/p]\ncontrollers:\n  - high: {temp: 44000, pwm: 255}\n",
			want: "controllers[0] low.temp must not exceed high.temp",
		},
		{
			name: "NegativeInterval",
			body: "control_interval: -1s\n" + minimalYAML,
			want: "control_interval must be > 0",
		},
		{
			name: "IntervalTooShort",
			body: "control_interval: 1ms\n" + minimalYAML,
			want: "control_interval must be at least 10ms",
		},
		{
			name: "BadTickErrorPolicy",
			body: "on_tick_error: retry\n" + minimalYAML,
			want: `on_tick_error must be "abort" or "skip"`,
		},
		{
			name: "BadLogLevel",
			body: "log_level: chatty\n" + minimalYAML,
			want: `log_level "chatty" is not a log level`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, "cfg.yaml", tc.body))
			requireErrEq(t, err, tc.want)
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("err=%T want *ConfigurationError", err)
			}
		})
	}
}

func TestLoad_Legacy(t *testing.T) {
	body := `# fan control
LOG_TRESHOLD = DEBUG
CONTROL_INTERVAL = 2000

TEMPERATURE_SENSOR_PATH.0 = /sys/class/hwmon/hwmon2/temp1_input
TEMPERATURE_SENSOR_PATH.1 = /sys/class/hwmon/hwmon2/temp2_input
PWM_ACTUATOR_PATH.0 = /sys/class/hwmon/hwmon2/pwm1

TEMPERATURE_SENSOR_INDEX.1 = 1
PWM_ACTUATOR_INDEX.1 = 0
BASE_CONTROL_PWM.1 = 80
HIGH_CONTROL_TEMPERATURE.1 = 90000
SOME_FUTURE_OPTION = whatever
`
	cfg, err := Load(writeTempConfig(t, "amdgpu-fanctrl.conf", body))
	require.NoError(t, err)

	require.Equal(t, "DEBUG", cfg.LogLevel)
	require.Equal(t, 2*time.Second, cfg.ControlInterval)
	require.Equal(t, []string{"/sys/class/hwmon/hwmon2/temp1_input", "/sys/class/hwmon/hwmon2/temp2_input"}, cfg.TemperatureSensors)
	require.Equal(t, []string{"/sys/class/hwmon/hwmon2/pwm1"}, cfg.PWMActuators)
	require.Len(t, cfg.Controllers, 2)
	require.Equal(t, DefaultControllerConfig(), cfg.Controllers[0])
	require.Equal(t, 1, cfg.Controllers[1].TemperatureSensor)
	require.Equal(t, uint(80), cfg.Controllers[1].Base.PWM)
	require.Equal(t, uint(90000), cfg.Controllers[1].High.Temp)
}

func TestLoad_LegacySinglePairWithoutIndices(t *testing.T) {
	body := "TEMPERATURE_SENSOR_PATH = /t\nPWM_ACTUATOR_PATH = /p\nLOW_CONTROL_PWM = 60\n"
	cfg, err := Load(writeTempConfig(t, "fan.conf", body))
	require.NoError(t, err)
	require.Equal(t, []string{"/t"}, cfg.TemperatureSensors)
	require.Equal(t, []string{"/p"}, cfg.PWMActuators)
	require.Len(t, cfg.Controllers, 1)
	require.Equal(t, uint(60), cfg.Controllers[0].Low.PWM)
}

func TestLoad_LegacyErrors(t *testing.T) {
	_, err := Load(writeTempConfig(t, "fan.conf", "TEMPERATURE_SENSOR_PATH = /t\nthis is not valid\n"))
	requireErrEq(t, err, "line 2 is not of the form ATTRIBUTE[.N] = value")

	_, err = Load(writeTempConfig(t, "fan.conf", "BASE_CONTROL_PWM.0 = fast\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 1 BASE_CONTROL_PWM")
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")
	present := writeTempConfig(t, "present.conf", "")

	got, err := Find([]string{missing, present})
	require.NoError(t, err)
	require.Equal(t, present, got)

	_, err = Find([]string{missing})
	require.Error(t, err)
}

func TestConfig_LogSummary(t *testing.T) {
	cfg := Config{
		ControlInterval:    time.Second,
		TemperatureSensors: []string{"/t0"},
		PWMActuators:       []string{"/p0", "/p1"},
		Controllers:        []ControllerConfig{DefaultControllerConfig()},
	}

	var lines []string
	logger := funcr.New(func(_, args string) { lines = append(lines, args) }, funcr.Options{})
	cfg.LogSummary(logger)

	// One summary line, one per sensor, actuator and controller.
	require.Len(t, lines, 5)
	require.Contains(t, lines[1], `"path"="/t0"`)
	require.Contains(t, lines[3], `"path"="/p1"`)
}
