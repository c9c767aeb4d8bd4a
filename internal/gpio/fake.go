package gpio

import "errors"

// Signal names an output line in FakeIO's write log.
type Signal string

const (
	SignalPower  Signal = "POWER"
	SignalNotify Signal = "NOTIFY"
	SignalLED    Signal = "LED"
)

// Write is a single recorded output command.
type Write struct {
	Signal Signal
	Value  bool
}

// Sample represents a single reading of both inputs.
type Sample struct {
	Switched  bool // true = high
	Heartbeat bool // true = high
}

// FakeIO is a test double that returns scripted input levels and records
// every output command.
type FakeIO struct {
	// Samples contains scripted input levels.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Current commanded output levels.
	PowerEnable bool
	HostNotify  bool
	LED         bool

	// Writes logs every output command in order.
	Writes []Write

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// WriteError, if set, will be returned by every Set call.
	WriteError error

	changes chan struct{}
}

// NewFakeIO creates a FakeIO with the given samples and initial output levels.
func NewFakeIO(samples []Sample, initial Levels) *FakeIO {
	return &FakeIO{
		Samples:     samples,
		PowerEnable: initial.PowerEnable,
		HostNotify:  initial.HostNotify,
		LED:         initial.LED,
		changes:     make(chan struct{}, 1),
	}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeIO) Read() (bool, bool, error) {
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Switched, sample.Heartbeat, nil
}

// SetPowerEnable records the power-enable command.
func (f *FakeIO) SetPowerEnable(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.PowerEnable = on
	f.Writes = append(f.Writes, Write{SignalPower, on})
	return nil
}

// SetHostNotify records the host-notify command.
func (f *FakeIO) SetHostNotify(high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.HostNotify = high
	f.Writes = append(f.Writes, Write{SignalNotify, high})
	return nil
}

// SetLED records the LED command.
func (f *FakeIO) SetLED(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.LED = on
	f.Writes = append(f.Writes, Write{SignalLED, on})
	return nil
}

// Changes delivers notifications queued by Notify.
func (f *FakeIO) Changes() <-chan struct{} {
	return f.changes
}

// Notify simulates an edge on either input. Like hardware, at most one
// notification is pending; extra calls coalesce.
func (f *FakeIO) Notify() {
	notify(f.changes)
}

// Close marks the IO as closed.
func (f *FakeIO) Close() error {
	f.Closed = true
	return nil
}
