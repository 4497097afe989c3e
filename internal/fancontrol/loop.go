package fancontrol

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

var afterFn = time.After

// DefaultControlInterval is used when a loop is created with a
// non-positive interval.
const DefaultControlInterval = time.Second

// TickErrorHandler decides what happens when a controller tick fails.
// Returning nil continues with the next controller; returning an error ends
// Run with that error.
type TickErrorHandler func(c *Controller, err error) error

// AbortOnTickError ends the loop on the first failed tick. This is the
// default: commanding a fan from a failed sensor is unsafe, and tearing
// the controllers down returns the fans to automatic control.
func AbortOnTickError(_ *Controller, err error) error { return err }

// SkipTickErrors logs the failure and carries on with the next controller.
func SkipTickErrors(logger logr.Logger) TickErrorHandler {
	return func(c *Controller, err error) error {
		logger.Error(err, "Control cycle failed, skipping", "controller", c.Name())
		return nil
	}
}

// Observer is notified about every tick. Calls happen on the loop goroutine.
type Observer interface {
	ObserveTick(controller string, r TickResult)
	ObserveTickError(controller string, err error)
	// EndRound is called after all controllers were ticked once.
	EndRound()
}

type nopObserver struct{}

func (nopObserver) ObserveTick(string, TickResult)  {}
func (nopObserver) ObserveTickError(string, error) {}
func (nopObserver) EndRound()                      {}

type Option func(*Loop)

func WithTickErrorHandler(h TickErrorHandler) Option {
	return func(l *Loop) {
		if h != nil {
			l.onTickError = h
		}
	}
}

func WithObserver(o Observer) Option {
	return func(l *Loop) {
		if o != nil {
			l.observer = o
		}
	}
}

// Loop ticks its controllers in order, then sleeps for the control interval,
// until stopped.
type Loop struct {
	controllers []*Controller
	interval    time.Duration
	log         logr.Logger
	onTickError TickErrorHandler
	observer    Observer

	running atomic.Bool
	wake    chan struct{}
}

// NewLoop returns a stopped loop owning controllers.
func NewLoop(controllers []*Controller, interval time.Duration, logger logr.Logger, opts ...Option) *Loop {
	if interval <= 0 {
		interval = DefaultControlInterval
	}
	l := &Loop{
		controllers: controllers,
		interval:    interval,
		log:         logger,
		onTickError: AbortOnTickError,
		observer:    nopObserver{},
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Running reports whether Run is active and no stop has been requested.
func (l *Loop) Running() bool { return l.running.Load() }

// Run blocks until Stop is called, ctx is cancelled or the tick error
// handler returns an error. Calling Run while already running returns nil
// immediately.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}
	// Discard a wake-up left over from an earlier Stop.
	select {
	case <-l.wake:
	default:
	}

	l.log.Info("Entering control loop", "controllers", len(l.controllers), "interval", l.interval)
	defer l.log.Info("Exiting control loop")

	for l.running.Load() {
		if err := l.tick(); err != nil {
			l.running.Store(false)
			return err
		}
		select {
		case <-afterFn(l.interval):
		case <-l.wake:
		case <-ctx.Done():
			l.running.Store(false)
			return nil
		}
	}
	return nil
}

func (l *Loop) tick() error {
	for _, c := range l.controllers {
		r, err := c.Tick()
		if err != nil {
			l.observer.ObserveTickError(c.Name(), err)
			if herr := l.onTickError(c, err); herr != nil {
				return herr
			}
			continue
		}
		l.observer.ObserveTick(c.Name(), r)
	}
	l.observer.EndRound()
	return nil
}

// Stop asks a running loop to exit. It only stores a flag and does a
// non-blocking channel send, so it may be called from a signal handling
// goroutine at any time. The loop exits at the latest after the current
// tick.
func (l *Loop) Stop() {
	l.running.Store(false)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close releases all controllers. It must not be called while Run is
// active.
func (l *Loop) Close() {
	for i := len(l.controllers) - 1; i >= 0; i-- {
		l.controllers[i].Close()
	}
	l.controllers = nil
}
