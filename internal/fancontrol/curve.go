package fancontrol

// Temperature is a sensor reading in milli-degrees Celsius.
type Temperature uint

// PwmValue is a raw duty-cycle value on the actuator's own scale
// (0-255 for hwmon pwmN files).
type PwmValue uint

// ControlPoint anchors the fan curve at one temperature.
type ControlPoint struct {
	Temp     Temperature
	PwmValue PwmValue
}

// Curve is the per-channel mapping from temperature to duty cycle.
//
// Below Base.Temp the fan is off. Between Base.Temp and Low.Temp it runs at
// Low.PwmValue. Between Low and High the value is interpolated linearly, and
// above High.Temp it saturates at High.PwmValue. Base.PwmValue is only used
// as the minimum value when a stopped fan is started.
//
// Callers must ensure Base.Temp <= Low.Temp <= High.Temp.
type Curve struct {
	Base ControlPoint
	Low  ControlPoint
	High ControlPoint

	UpwardMargin   Temperature
	DownwardMargin Temperature
}

// ChannelState is the hysteresis state carried between ticks of one
// controller. The zero value means nothing has been observed yet.
type ChannelState struct {
	LastTemperature Temperature
	HasTemperature  bool

	LastPwmValue PwmValue
	HasPwmValue  bool

	JustStartedSpinning bool
}

// CalcPwm evaluates the curve at t.
func CalcPwm(t Temperature, c Curve) PwmValue {
	switch {
	case t < c.Base.Temp:
		return 0
	case t < c.Low.Temp:
		return c.Low.PwmValue
	case t < c.High.Temp:
		span := float64(c.High.PwmValue) - float64(c.Low.PwmValue)
		v := float64(c.Low.PwmValue) + span*float64(t-c.Low.Temp)/float64(c.High.Temp-c.Low.Temp)
		if v < 0 {
			return 0
		}
		return PwmValue(v)
	default:
		return c.High.PwmValue
	}
}

// NeedsUpdate reports whether t has left the hysteresis band around the
// last applied temperature, or whether the state forces a re-evaluation.
func NeedsUpdate(s ChannelState, t Temperature, c Curve) bool {
	return !s.HasTemperature ||
		!s.HasPwmValue ||
		s.JustStartedSpinning ||
		t > s.LastTemperature+c.UpwardMargin ||
		t+c.DownwardMargin < s.LastTemperature
}

// Decide runs the control law for one tick. It returns whether the actuator
// must be written, the value to write and the state to carry into the next
// tick. When no update is needed the returned state equals s.
func Decide(s ChannelState, t Temperature, c Curve) (bool, PwmValue, ChannelState) {
	if !NeedsUpdate(s, t, c) {
		return false, s.LastPwmValue, s
	}

	pwm := CalcPwm(t, c)
	next := ChannelState{
		LastTemperature: t,
		HasTemperature:  true,
		HasPwmValue:     true,
	}

	// A stopped (or never commanded) fan must be kicked with at least the
	// base value. The follow-up evaluation is only forced after a stop that
	// was actually observed.
	stopped := !s.HasPwmValue || s.LastPwmValue == 0
	if stopped && pwm > 0 {
		if pwm < c.Base.PwmValue {
			pwm = c.Base.PwmValue
		}
		next.JustStartedSpinning = s.HasPwmValue
	}

	next.LastPwmValue = pwm
	return true, pwm, next
}
