package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/oklog/run"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"amdgpu-fanctrl/internal/config"
	"amdgpu-fanctrl/internal/fancontrol"
	"amdgpu-fanctrl/internal/logging"
	"amdgpu-fanctrl/internal/metrics"
)

func main() {
	var configPath string
	var debug bool
	flag.StringVar(&configPath, "config", "", "Path to config (.yaml, or KEY[.N] = value format); searched in default locations if empty")
	flag.BoolVar(&debug, "debug", false, "Log at debug level, overriding log_level")
	flag.BoolVar(&debug, "d", false, "Shorthand for -debug")
	flag.Parse()
	if flag.NArg() > 0 {
		logging.Fatal(logging.Default().Logger, fmt.Errorf("unexpected arguments: %v", flag.Args()), "Invalid command line")
	}

	os.Exit(runDaemon(configPath, debug, os.Stderr))
}

func runDaemon(configPath string, debug bool, logOut io.Writer) int {
	logger := logging.New(zapcore.InfoLevel, "console", logOut)

	if configPath == "" {
		p, err := config.Find(config.SearchPaths())
		if err != nil {
			logger.Error(err, "Config lookup failed")
			return 1
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error(err, "Config load failed", "path", configPath)
		return 1
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger = logging.New(level, cfg.LogFormat, logOut)
	if debug {
		logger.SetLevel(zapcore.DebugLevel)
	}
	logger.Info("amdgpu-fanctrl starting", "config", configPath, "logLevel", logger.Level().String())
	cfg.LogSummary(logger.Logger)

	sensors := fancontrol.NewSensorRegistry(logger.Logger)
	actuators := fancontrol.NewActuatorRegistry(logger.Logger)
	recorder := metrics.NewRecorder(cfg.MetricsTextfile, logger.WithName("metrics"))

	loop, err := buildLoop(cfg, sensors, actuators, recorder, logger.Logger)
	if err != nil {
		logger.Error(err, "Controller setup failed")
		return 1
	}
	// Releasing the controllers hands every fan back to automatic control.
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return loop.Run(ctx)
	}, func(error) {
		loop.Stop()
		cancel()
	})
	// Same termination set as a classic sigaction-based daemon, SIGTSTP
	// included so job control never freezes a fan at a fixed duty cycle.
	g.Add(run.SignalHandler(ctx, unix.SIGHUP, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM, unix.SIGTSTP))

	err = g.Run()
	var sigErr run.SignalError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.As(err, &sigErr):
		logger.Info("amdgpu-fanctrl stopping", "signal", sigErr.Signal.String())
	default:
		logger.Error(err, "Control loop failed")
		return 1
	}
	return 0
}
