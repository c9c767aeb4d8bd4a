//go:build !linux

package gpio

import "errors"

// RealIO is not available on non-Linux platforms.
type RealIO struct{}

// NewRealIO returns an error on non-Linux platforms.
func NewRealIO(chipName string, pins Pins, initial Levels) (*RealIO, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (r *RealIO) Read() (bool, bool, error) {
	return false, false, errors.New("gpio: not supported")
}

// SetPowerEnable is not implemented on non-Linux platforms.
func (r *RealIO) SetPowerEnable(on bool) error {
	return errors.New("gpio: not supported")
}

// SetHostNotify is not implemented on non-Linux platforms.
func (r *RealIO) SetHostNotify(high bool) error {
	return errors.New("gpio: not supported")
}

// SetLED is not implemented on non-Linux platforms.
func (r *RealIO) SetLED(on bool) error {
	return errors.New("gpio: not supported")
}

// Changes returns a channel that never delivers.
func (r *RealIO) Changes() <-chan struct{} {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (r *RealIO) Close() error {
	return nil
}
