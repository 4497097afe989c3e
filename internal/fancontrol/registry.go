package fancontrol

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"

	"amdgpu-fanctrl/internal/logging"
)

// Device is an open binding to one physical sensor or actuator.
//
// Close is called exactly once, when the last Handle referencing the device
// is released. It should leave the hardware in a safe state.
type Device interface {
	Close() error
}

// binding is the registry's record for one opened device. refs counts the
// owning handles; once it drops to zero the binding is expired for good and
// a later Acquire opens a fresh one. closing is set while the expired
// device is being closed outside the registry lock.
type binding[D Device] struct {
	dev     D
	refs    int
	closing chan struct{}
}

// Registry deduplicates device bindings by path.
//
// The registry never owns a device: it only remembers which binding is live
// for a path. Ownership lives in the Handles returned by Acquire, and the
// device is closed when the last of them is released, and its entry is
// dropped once the close finished.
//
// Safe for concurrent use.
type Registry[D Device] struct {
	open func(path string) (D, error)
	log  logr.Logger

	mu       sync.Mutex
	bindings map[string]*binding[D]
}

// NewRegistry returns a registry that opens devices with open.
func NewRegistry[D Device](open func(path string) (D, error), logger logr.Logger) *Registry[D] {
	return &Registry[D]{
		open:     open,
		log:      logger,
		bindings: make(map[string]*binding[D]),
	}
}

// Acquire returns an owning handle for the device at path, opening it if no
// live binding exists. Open failures are returned as *AcquisitionError and
// leave no trace in the registry.
func (r *Registry[D]) Acquire(path string) (*Handle[D], error) {
	if path == "" {
		return nil, &AcquisitionError{Path: path, Err: errors.New("empty device path")}
	}
	key := filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		b, ok := r.bindings[key]
		if !ok {
			break
		}
		if b.refs > 0 {
			b.refs++
			return &Handle[D]{reg: r, path: key, b: b, owning: true}, nil
		}
		// The old binding is still being torn down. Opening the path again
		// before that finished could see its mode reset land after our own
		// setup.
		closing := b.closing
		r.mu.Unlock()
		<-closing
		r.mu.Lock()
	}

	dev, err := r.open(key)
	if err != nil {
		var acqErr *AcquisitionError
		if errors.As(err, &acqErr) {
			return nil, err
		}
		return nil, &AcquisitionError{Path: key, Err: err}
	}
	b := &binding[D]{dev: dev, refs: 1}
	r.bindings[key] = b
	r.log.V(logging.DEBUG).Info("Opened device", "path", key)
	return &Handle[D]{reg: r, path: key, b: b, owning: true}, nil
}

// Live reports whether a binding for path is currently held by at least
// one handle.
func (r *Registry[D]) Live(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[filepath.Clean(path)]
	return ok && b.refs > 0
}

func (r *Registry[D]) release(path string, b *binding[D]) {
	r.mu.Lock()
	b.refs--
	if b.refs > 0 {
		r.mu.Unlock()
		return
	}
	dev := b.dev
	var zero D
	b.dev = zero
	b.closing = make(chan struct{})
	r.mu.Unlock()

	// Teardown is best effort: failures are reported, never returned.
	if err := dev.Close(); err != nil {
		r.log.Info("Releasing device failed", "path", path, "error", err.Error())
	} else {
		r.log.V(logging.DEBUG).Info("Released device", "path", path)
	}

	r.mu.Lock()
	if r.bindings[path] == b {
		delete(r.bindings, path)
	}
	r.mu.Unlock()
	close(b.closing)
}

// Handle is one owning reference to a shared device binding.
//
// A handle must be released exactly once by its owner. Move transfers the
// reference to a new handle; releasing the moved-from handle afterwards is
// a no-op. Handles are not safe for concurrent use, but distinct handles to
// the same device are.
type Handle[D Device] struct {
	reg    *Registry[D]
	path   string
	b      *binding[D]
	owning bool
}

// Path returns the cleaned device path the handle is bound to.
func (h *Handle[D]) Path() string { return h.path }

// Device returns the shared device. It returns the zero value once the
// handle no longer owns a reference.
func (h *Handle[D]) Device() D {
	if h == nil || !h.owning {
		var zero D
		return zero
	}
	return h.b.dev
}

// Owning reports whether the handle still holds a reference.
func (h *Handle[D]) Owning() bool { return h != nil && h.owning }

// Clone returns an additional owning reference to the same binding, or nil
// if h no longer owns one.
func (h *Handle[D]) Clone() *Handle[D] {
	if !h.Owning() {
		return nil
	}
	h.reg.mu.Lock()
	h.b.refs++
	h.reg.mu.Unlock()
	return &Handle[D]{reg: h.reg, path: h.path, b: h.b, owning: true}
}

// Move transfers h's reference to a new handle. h stops owning and its
// Release becomes a no-op. Moving a non-owning handle returns nil.
func (h *Handle[D]) Move() *Handle[D] {
	if !h.Owning() {
		return nil
	}
	h.owning = false
	return &Handle[D]{reg: h.reg, path: h.path, b: h.b, owning: true}
}

// Release drops the reference. The device is closed when this was the last
// one. Close errors are logged, never returned.
func (h *Handle[D]) Release() {
	if !h.Owning() {
		return
	}
	h.owning = false
	h.reg.release(h.path, h.b)
}
