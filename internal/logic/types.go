// Package logic contains the pure power-sequencing state machine and blink timer.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Level is the display form of a boolean signal or latch.
type Level string

const (
	LevelOn  Level = "ON"
	LevelOff Level = "OFF"
)

// LevelOf converts a boolean into its display level.
func LevelOf(b bool) Level {
	if b {
		return LevelOn
	}
	return LevelOff
}

// Phase is the operator-visible phase the LED encodes.
type Phase string

const (
	PhaseBooting    Phase = "BOOTING"     // no input-change run yet
	PhaseRunning    Phase = "RUNNING"     // power on, LED solid
	PhaseWaiting    Phase = "WAITING"     // power on, LED blinking
	PhasePoweredOff Phase = "POWERED_OFF" // power-enable cut, LED off
)

// EventType represents a sequencer transition.
type EventType string

const (
	EventHostStarted  EventType = "HOST_STARTED"
	EventHostShutdown EventType = "HOST_SHUTDOWN"
	EventSwitchedOn   EventType = "SWITCHED_ON"
	EventSwitchedOff  EventType = "SWITCHED_OFF"
)

// Input is a fresh sample of both sensed inputs, taken when an input-change
// notification is handled.
type Input struct {
	SwitchedPower bool // true = switched (ignition) rail present
	Heartbeat     bool // true = host control process running
	Time          time.Time
}

// Outputs are the commanded levels of the three output signals.
// HostNotify is the electrical level: low (false) = switched power present.
type Outputs struct {
	PowerEnable bool
	HostNotify  bool
	LED         bool
}

// State is the process-wide record shared by the input-change handler and
// the blink timer. It lives for one power cycle.
type State struct {
	// Set the first time heartbeat is seen high. Never cleared.
	HostAcknowledged bool
	// Whether the high-side switch is commanded on. Never set again once cleared.
	PowerEnabled bool
	// Whether the blink timer is toggling the LED.
	BlinkEnabled bool
	// Commanded LED level.
	LEDLevel bool
}

// Event is a sequencer transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
	Outputs   Outputs
}

// EventCounts tracks the number of each event type since boot.
type EventCounts struct {
	HostStarted  int
	HostShutdown int
	SwitchedOn   int
	SwitchedOff  int
}

// ReportData contains information for a periodic status report.
type ReportData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// SwitchedLabel names the switched power state that host-notify signals.
func (o Outputs) SwitchedLabel() string {
	if o.HostNotify {
		return "ABSENT"
	}
	return "PRESENT"
}
