package fancontrol

import "github.com/go-logr/logr"

// Sensor is a shared temperature source.
type Sensor interface {
	Device
	Read() (Temperature, error)
}

// TemperatureSensor reads a hwmon tempN_input style file holding a decimal
// milli-degree value. The file stays open and is re-read from offset 0 on
// every call.
type TemperatureSensor struct {
	path string
	f    *devFile
}

// OpenTemperatureSensor opens the sensor file at path.
func OpenTemperatureSensor(path string) (*TemperatureSensor, error) {
	f, err := openDevFile(path, false)
	if err != nil {
		return nil, &AcquisitionError{Path: path, Err: err}
	}
	return &TemperatureSensor{path: path, f: f}, nil
}

// Read returns the current temperature. It never caches.
func (s *TemperatureSensor) Read() (Temperature, error) {
	var buf [32]byte
	n, err := s.f.readFromStart(buf[:])
	if err != nil {
		return 0, &IoError{Op: "read", Path: s.path, Err: err}
	}
	t, err := parseMilliCelsius(string(buf[:n]))
	if err != nil {
		return 0, &IoError{Op: "read", Path: s.path, Err: err}
	}
	return t, nil
}

func (s *TemperatureSensor) Close() error {
	return s.f.Close()
}

// NewSensorRegistry returns a registry of file-backed temperature sensors.
func NewSensorRegistry(logger logr.Logger) *Registry[Sensor] {
	return NewRegistry(func(path string) (Sensor, error) {
		s, err := OpenTemperatureSensor(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, logger.WithName("sensors"))
}
