//go:build unix

package fancontrol

import (
	"errors"

	"golang.org/x/sys/unix"
)

// devFile is a raw descriptor on a sysfs-style attribute file. Reads always
// start at offset 0 so every read observes the current kernel value.
type devFile struct {
	fd   int
	path string
}

func openDevFile(path string, write bool) (*devFile, error) {
	flags := unix.O_RDONLY
	if write {
		flags = unix.O_WRONLY
	}
	for {
		fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &devFile{fd: fd, path: path}, nil
	}
}

func (f *devFile) readFromStart(buf []byte) (int, error) {
	for {
		n, err := unix.Pread(f.fd, buf, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

func (f *devFile) write(p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(f.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (f *devFile) Close() error {
	if f == nil || f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}
