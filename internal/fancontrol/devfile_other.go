//go:build !unix

package fancontrol

import "os"

// Fallback for platforms without x/sys/unix. Only useful for tests against
// regular files.
type devFile struct {
	f    *os.File
	path string
}

func openDevFile(path string, write bool) (*devFile, error) {
	flag := os.O_RDONLY
	if write {
		flag = os.O_WRONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	return &devFile{f: f, path: path}, nil
}

func (f *devFile) readFromStart(buf []byte) (int, error) {
	n, err := f.f.ReadAt(buf, 0)
	if n > 0 {
		return n, nil
	}
	return n, err
}

func (f *devFile) write(p []byte) error {
	_, err := f.f.Write(p)
	return err
}

func (f *devFile) Close() error {
	if f == nil || f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
