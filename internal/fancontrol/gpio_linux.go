//go:build linux

package fancontrol

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// gpioFan drives a 2-wire fan switched by a transistor/MOSFET on a GPIO
// line. Any PWM value above 0 turns the fan on.
type gpioFan struct {
	name string

	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// openGPIO requests lineName on chipName as an output. lineName is either
// a line name like "GPIO18" or a numeric offset. The line starts high so the
// fan runs until the first tick decides otherwise.
func openGPIO(chipName, lineName string) (Actuator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("fancontrol: open gpio chip %s: %w", chipName, err)
	}
	offset, err := strconv.Atoi(lineName)
	if err != nil {
		offset, err = chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			return nil, fmt.Errorf("fancontrol: gpio line %q not found on %s: %w", lineName, chipName, err)
		}
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("amdgpu-fanctrl"))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("fancontrol: request gpio line %q: %w", lineName, err)
	}
	return &gpioFan{name: chipName + "/" + lineName, chip: chip, line: line}, nil
}

var openGPIOFn = openGPIO

func (g *gpioFan) SetValue(v PwmValue) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.line == nil {
		return &IoError{Op: "write", Path: g.name, Err: fmt.Errorf("gpio fan closed")}
	}
	on := 0
	if v > 0 {
		on = 1
	}
	if err := g.line.SetValue(on); err != nil {
		return &IoError{Op: "write", Path: g.name, Err: err}
	}
	return nil
}

// Close leaves the fan running at full speed before releasing the line.
// There is no automatic mode to hand back to on a bare GPIO.
func (g *gpioFan) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.line == nil {
		return nil
	}
	_ = g.line.SetValue(1)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
