//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "power-sequencer"

// RealIO drives actual hardware using the Linux GPIO character device.
type RealIO struct {
	chip      *gpiocdev.Chip
	switched  *gpiocdev.Line
	heartbeat *gpiocdev.Line
	power     *gpiocdev.Line
	notify    *gpiocdev.Line
	led       *gpiocdev.Line
	changes   chan struct{}
}

// NewRealIO requests the output lines at the given initial levels, then the
// input lines with both-edge detection armed.
func NewRealIO(chipName string, pins Pins, initial Levels) (*RealIO, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealIO{
		chip:    chip,
		changes: make(chan struct{}, 1),
	}

	// Outputs first so power-enable is asserted before any edge can fire.
	if r.power, err = chip.RequestLine(pins.Power, gpiocdev.AsOutput(boolToValue(initial.PowerEnable))); err != nil {
		r.Close()
		return nil, fmt.Errorf("request power pin %d: %w", pins.Power, err)
	}
	if r.notify, err = chip.RequestLine(pins.Notify, gpiocdev.AsOutput(boolToValue(initial.HostNotify))); err != nil {
		r.Close()
		return nil, fmt.Errorf("request notify pin %d: %w", pins.Notify, err)
	}
	if r.led, err = chip.RequestLine(pins.LED, gpiocdev.AsOutput(boolToValue(initial.LED))); err != nil {
		r.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", pins.LED, err)
	}

	handler := func(gpiocdev.LineEvent) { notify(r.changes) }

	// Inputs with pull-down so an unpowered host reads as heartbeat low.
	if r.switched, err = chip.RequestLine(pins.Switched,
		gpiocdev.AsInput, gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(handler)); err != nil {
		r.Close()
		return nil, fmt.Errorf("request switched pin %d: %w", pins.Switched, err)
	}
	if r.heartbeat, err = chip.RequestLine(pins.Heartbeat,
		gpiocdev.AsInput, gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(handler)); err != nil {
		r.Close()
		return nil, fmt.Errorf("request heartbeat pin %d: %w", pins.Heartbeat, err)
	}

	return r, nil
}

// Read returns the current levels of both inputs.
func (r *RealIO) Read() (bool, bool, error) {
	sw, err := r.switched.Value()
	if err != nil {
		return false, false, fmt.Errorf("read switched pin: %w", err)
	}

	hb, err := r.heartbeat.Value()
	if err != nil {
		return false, false, fmt.Errorf("read heartbeat pin: %w", err)
	}

	return sw == 1, hb == 1, nil
}

// SetPowerEnable drives the high-side switch gate.
func (r *RealIO) SetPowerEnable(on bool) error {
	if err := r.power.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set power pin: %w", err)
	}
	return nil
}

// SetHostNotify drives the host-notify line.
func (r *RealIO) SetHostNotify(high bool) error {
	if err := r.notify.SetValue(boolToValue(high)); err != nil {
		return fmt.Errorf("set notify pin: %w", err)
	}
	return nil
}

// SetLED drives the status LED.
func (r *RealIO) SetLED(on bool) error {
	if err := r.led.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set LED pin: %w", err)
	}
	return nil
}

// Changes delivers input-change notifications.
func (r *RealIO) Changes() <-chan struct{} {
	return r.changes
}

// Close releases GPIO resources.
// Input lines are returned to pulled-down inputs with edge detection off.
// Output lines are released without reconfiguring: turning the power-enable
// line into an input would drop the high-side switch.
func (r *RealIO) Close() error {
	var errs []error

	for _, in := range []struct {
		name string
		line *gpiocdev.Line
	}{{"switched", r.switched}, {"heartbeat", r.heartbeat}} {
		if in.line == nil {
			continue
		}
		if err := in.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithoutEdges); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", in.name, err))
		}
		if err := in.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", in.name, err))
		}
	}

	for _, out := range []struct {
		name string
		line *gpiocdev.Line
	}{{"power", r.power}, {"notify", r.notify}, {"LED", r.led}} {
		if out.line == nil {
			continue
		}
		if err := out.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", out.name, err))
		}
	}

	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
