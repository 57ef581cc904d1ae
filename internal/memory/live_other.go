//go:build !windows

package memory

// Live accesses the memory of the current process. It is only available on
// Windows, where the hooked host runs.
type Live struct{}

// NewLive returns ErrUnsupported on this platform.
func NewLive() (*Live, error) {
	return nil, ErrUnsupported
}

// ModuleBase returns ErrUnsupported on this platform.
func ModuleBase() (uintptr, error) {
	return 0, ErrUnsupported
}

// Read implements Memory.
func (l *Live) Read(uintptr, int) ([]byte, error) { return nil, ErrUnsupported }

// Patch implements Memory.
func (l *Live) Patch(uintptr, []byte) error { return ErrUnsupported }

// Reserve implements Pager.
func (l *Live) Reserve(uintptr, int) (uintptr, error) { return 0, ErrUnsupported }

// Write implements Pager.
func (l *Live) Write(uintptr, []byte) error { return ErrUnsupported }

// Protect implements Pager.
func (l *Live) Protect(uintptr, int, bool) error { return ErrUnsupported }

// Flush implements Pager.
func (l *Live) Flush(uintptr, int) error { return ErrUnsupported }
