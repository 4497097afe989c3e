package fancontrol

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Actuator is a shared duty-cycle sink.
type Actuator interface {
	Device
	SetValue(v PwmValue) error
}

// PwmMode is the value written to a hwmon pwmN_enable file.
type PwmMode int

const (
	// ModeUserControl lets userspace write pwmN directly.
	ModeUserControl PwmMode = 1
	// ModeAutoControl hands the fan back to the driver or firmware.
	ModeAutoControl PwmMode = 2
)

// ModeFileSuffix is appended to the value file path to get the mode file.
const ModeFileSuffix = "_enable"

// gpioPrefix selects the GPIO on/off backend, e.g. "gpio:gpiochip0/GPIO18".
const gpioPrefix = "gpio:"

// PWMActuator drives a hwmon pwmN file.
//
// Opening it switches the channel to user control. Close switches it back to
// automatic control, so a stopped daemon never leaves a fan pinned at the
// last value it wrote.
type PWMActuator struct {
	path string

	mu sync.Mutex
	f  *devFile
}

// OpenPWMActuator opens the value file at path and takes user control.
func OpenPWMActuator(path string) (*PWMActuator, error) {
	f, err := openDevFile(path, true)
	if err != nil {
		return nil, &AcquisitionError{Path: path, Err: err}
	}
	a := &PWMActuator{path: path, f: f}
	if err := a.setMode(ModeUserControl, sysfsRetryWindow); err != nil {
		_ = f.Close()
		return nil, &AcquisitionError{Path: path, Err: err}
	}
	return a, nil
}

func (a *PWMActuator) setMode(m PwmMode, retryWindow time.Duration) error {
	return writeSysfsFn(a.path+ModeFileSuffix, strconv.Itoa(int(m))+"\n", retryWindow)
}

// SetValue writes v followed by a newline.
func (a *PWMActuator) SetValue(v PwmValue) error {
	var buf [24]byte
	b := strconv.AppendUint(buf[:0], uint64(v), 10)
	b = append(b, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return &IoError{Op: "write", Path: a.path, Err: fmt.Errorf("actuator closed")}
	}
	if err := a.f.write(b); err != nil {
		return &IoError{Op: "write", Path: a.path, Err: err}
	}
	return nil
}

// Close restores automatic control and closes the value file. Both steps
// are attempted even if the first fails. The mode write is tried once.
func (a *PWMActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	var merr error
	if err := a.setMode(ModeAutoControl, 0); err != nil {
		merr = fmt.Errorf("fancontrol: restore auto mode for %s: %w", a.path, err)
	}
	cerr := a.f.Close()
	a.f = nil
	if merr != nil {
		return merr
	}
	return cerr
}

// parseGPIOPath splits "gpio:<chip>/<line>" into chip and line.
func parseGPIOPath(path string) (chip, line string, err error) {
	rest, ok := strings.CutPrefix(path, gpioPrefix)
	if !ok {
		return "", "", fmt.Errorf("fancontrol: not a gpio path: %q", path)
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("fancontrol: gpio path must be gpio:<chip>/<line>, got %q", path)
	}
	return rest[:i], rest[i+1:], nil
}

func openActuator(path string) (Actuator, error) {
	if strings.HasPrefix(path, gpioPrefix) {
		chip, line, err := parseGPIOPath(path)
		if err != nil {
			return nil, &AcquisitionError{Path: path, Err: err}
		}
		a, err := openGPIOFn(chip, line)
		if err != nil {
			return nil, &AcquisitionError{Path: path, Err: err}
		}
		return a, nil
	}
	a, err := OpenPWMActuator(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewActuatorRegistry returns a registry of actuators. Paths starting with
// "gpio:" open a GPIO line; all others a hwmon pwmN file.
func NewActuatorRegistry(logger logr.Logger) *Registry[Actuator] {
	return NewRegistry(openActuator, logger.WithName("actuators"))
}
