//go:build !linux

package fancontrol

import "fmt"

// Stub implementation for non-Linux platforms.
func openGPIO(chipName, lineName string) (Actuator, error) {
	return nil, fmt.Errorf("fancontrol: gpio unsupported on this platform")
}

var openGPIOFn = openGPIO
