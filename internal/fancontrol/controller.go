package fancontrol

import (
	"github.com/go-logr/logr"

	"amdgpu-fanctrl/internal/logging"
)

// TickResult describes what one controller tick observed and did.
type TickResult struct {
	Temperature Temperature
	// PwmValue is the value written this tick, or the last applied value
	// when Updated is false.
	PwmValue        PwmValue
	Updated         bool
	StartedSpinning bool
}

// Controller drives one channel: one sensor, one actuator, one curve.
//
// Not safe for concurrent use; the loop ticks controllers one at a time.
type Controller struct {
	name     string
	curve    Curve
	sensor   *Handle[Sensor]
	actuator *Handle[Actuator]
	state    ChannelState
	log      logr.Logger
}

// NewController takes over the given handles; the caller's handles stop
// owning and must not be used afterwards. The handles are released by
// Close.
func NewController(name string, curve Curve, sensor *Handle[Sensor], actuator *Handle[Actuator], logger logr.Logger) *Controller {
	return &Controller{
		name:     name,
		curve:    curve,
		sensor:   sensor.Move(),
		actuator: actuator.Move(),
		log:      logger.WithValues("controller", name, "sensor", sensor.Path(), "actuator", actuator.Path()),
	}
}

func (c *Controller) Name() string { return c.name }

// State returns a copy of the hysteresis state.
func (c *Controller) State() ChannelState { return c.state }

// Tick reads the sensor once and writes the actuator at most once. Errors
// are returned as-is; on a failed write the state is left untouched so the
// next tick tries again.
func (c *Controller) Tick() (TickResult, error) {
	t, err := c.sensor.Device().Read()
	if err != nil {
		return TickResult{}, err
	}

	update, pwm, next := Decide(c.state, t, c.curve)
	dbg := c.log.V(logging.DEBUG)
	if !update {
		dbg.Info("No setting update for this control cycle needed",
			"previousTemperature", c.state.LastTemperature, "temperature", t,
			"pwm", c.state.LastPwmValue)
		return TickResult{Temperature: t, PwmValue: c.state.LastPwmValue}, nil
	}

	dbg.Info("Control cycle",
		"previousTemperature", optional(c.state.HasTemperature, c.state.LastTemperature), "temperature", t,
		"previousPwm", optional(c.state.HasPwmValue, c.state.LastPwmValue), "pwm", pwm)
	started := pwm > 0 && (!c.state.HasPwmValue || c.state.LastPwmValue == 0)
	if started {
		dbg.Info("Fan starts spinning", "pwm", pwm)
	}

	if err := c.actuator.Device().SetValue(pwm); err != nil {
		return TickResult{Temperature: t}, err
	}
	c.state = next
	return TickResult{Temperature: t, PwmValue: pwm, Updated: true, StartedSpinning: started}, nil
}

// Close releases the controller's device handles. The last release of an
// actuator hands the fan back to automatic control.
func (c *Controller) Close() {
	c.actuator.Release()
	c.sensor.Release()
}

func optional[T any](ok bool, v T) any {
	if !ok {
		return "unset"
	}
	return v
}
