package fancontrol

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// sysfsRetryWindow bounds how long writeSysfs retries permission and
// not-found errors when taking control of a device. Right after a hwmon
// driver binds, udev may still be adjusting ownership of the attribute
// files. Teardown writes use a zero window: a vanished device stays gone.
var sysfsRetryWindow = 2 * time.Second

var writeSysfsFn = writeSysfs

func writeSysfs(path string, value string, retryWindow time.Duration) error {
	// O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation flags at open() time.
	deadline := time.Now().Add(retryWindow)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		lastErr = errors.Join(werr, cerr)
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return lastErr
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

// parseMilliCelsius parses the content of a hwmon tempN_input or thermal
// zone file. Negative readings are clamped to 0.
func parseMilliCelsius(s string) (Temperature, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("temperature empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", s, err)
	}
	if n < 0 {
		return 0, nil
	}
	return Temperature(n), nil
}
