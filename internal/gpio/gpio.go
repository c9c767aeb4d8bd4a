// Package gpio provides the sequencer's hardware I/O surface.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// IO senses the two inputs and commands the three outputs.
// All levels are electrical: true = high.
type IO interface {
	// Read returns the current levels of switched-power-present and
	// host-heartbeat. Levels are read fresh on every call.
	Read() (switched bool, heartbeat bool, err error)

	// SetPowerEnable drives the high-side switch gate.
	SetPowerEnable(on bool) error

	// SetHostNotify drives the host-notify line (low = switched power present).
	SetHostNotify(high bool) error

	// SetLED drives the status LED.
	SetLED(on bool) error

	// Changes delivers input-change notifications for either input.
	// At most one notification is pending; further edges coalesce into it.
	Changes() <-chan struct{}

	// Close releases GPIO resources.
	Close() error
}

// Pins holds line offsets on the GPIO chip.
type Pins struct {
	Switched  int // switched-power-present input
	Heartbeat int // host-heartbeat input
	Power     int // power-enable output
	Notify    int // host-notify output
	LED       int // status-LED output
}

// Default pin offsets (BCM numbering on a Raspberry Pi header).
const (
	DefaultPinSwitched  = 17
	DefaultPinHeartbeat = 27
	DefaultPinPower     = 22
	DefaultPinNotify    = 23
	DefaultPinLED       = 24
)

// DefaultPins returns the default pin assignment.
func DefaultPins() Pins {
	return Pins{
		Switched:  DefaultPinSwitched,
		Heartbeat: DefaultPinHeartbeat,
		Power:     DefaultPinPower,
		Notify:    DefaultPinNotify,
		LED:       DefaultPinLED,
	}
}

// Levels are the initial output levels applied when lines are requested.
type Levels struct {
	PowerEnable bool
	HostNotify  bool
	LED         bool
}

func boolToValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

// notify performs a non-blocking send so an edge handler never stalls.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
