package main

import (
	"strconv"

	"github.com/go-logr/logr"

	"amdgpu-fanctrl/internal/config"
	"amdgpu-fanctrl/internal/fancontrol"
)

func curveFromConfig(c config.ControllerConfig) fancontrol.Curve {
	point := func(p config.ControlPoint) fancontrol.ControlPoint {
		return fancontrol.ControlPoint{Temp: fancontrol.Temperature(p.Temp), PwmValue: fancontrol.PwmValue(p.PWM)}
	}
	return fancontrol.Curve{
		Base:           point(c.Base),
		Low:            point(c.Low),
		High:           point(c.High),
		UpwardMargin:   fancontrol.Temperature(c.UpwardHysteresis),
		DownwardMargin: fancontrol.Temperature(c.DownwardHysteresis),
	}
}

// buildLoop acquires the devices of every configured controller. On failure
// everything acquired so far is released again, so a half-built setup never
// keeps a fan in user control.
func buildLoop(
	cfg config.Config,
	sensors *fancontrol.Registry[fancontrol.Sensor],
	actuators *fancontrol.Registry[fancontrol.Actuator],
	obs fancontrol.Observer,
	logger logr.Logger,
) (*fancontrol.Loop, error) {
	controllers := make([]*fancontrol.Controller, 0, len(cfg.Controllers))
	fail := func(err error) (*fancontrol.Loop, error) {
		for _, c := range controllers {
			c.Close()
		}
		return nil, err
	}

	for i, cc := range cfg.Controllers {
		s, err := sensors.Acquire(cfg.TemperatureSensors[cc.TemperatureSensor])
		if err != nil {
			return fail(err)
		}
		a, err := actuators.Acquire(cfg.PWMActuators[cc.PWMActuator])
		if err != nil {
			s.Release()
			return fail(err)
		}
		controllers = append(controllers, fancontrol.NewController(strconv.Itoa(i), curveFromConfig(cc), s, a, logger))
	}

	opts := []fancontrol.Option{fancontrol.WithObserver(obs)}
	if cfg.OnTickError == config.TickErrorSkip {
		opts = append(opts, fancontrol.WithTickErrorHandler(fancontrol.SkipTickErrors(logger)))
	}
	return fancontrol.NewLoop(controllers, cfg.ControlInterval, logger.WithName("loop"), opts...), nil
}
