package logic

import "time"

// Config holds the boot policy of the sequencer.
type Config struct {
	// BlinkHalfPeriod is the number of timer ticks between LED toggles.
	BlinkHalfPeriod int
	// BlinkAtBoot starts the blink timer enabled at boot.
	BlinkAtBoot bool
}

// Sequencer owns the power-cycle state record. HandleInputChange and Tick
// must be called from a single goroutine; neither is reentrant.
type Sequencer struct {
	state  State
	notify bool // commanded host-notify level, high = switched power absent
	blink  *Blinker
	ran    bool

	startTime  time.Time
	counts     EventCounts
	lastReport time.Time
}

// NewSequencer creates the state record with its boot defaults: power-enable
// asserted, LED lit, host-notify signalling "present", host not acknowledged.
func NewSequencer(cfg Config, startTime time.Time) *Sequencer {
	s := &Sequencer{
		state: State{
			PowerEnabled: true,
			LEDLevel:     true,
		},
		blink:      NewBlinker(cfg.BlinkHalfPeriod),
		startTime:  startTime,
		lastReport: startTime,
	}
	s.setBlink(cfg.BlinkAtBoot)
	return s
}

// HandleInputChange runs the state machine for one input-change notification.
// It re-derives every output from the current levels of both inputs, so it
// does not matter which input changed or how many notifications coalesced.
// The returned events describe the transitions this run caused.
func (s *Sequencer) HandleInputChange(input Input) []Event {
	prev := s.state
	prevNotify := s.notify
	first := !s.ran
	s.ran = true

	// Host heartbeat phase.
	switch {
	case input.Heartbeat && !s.state.HostAcknowledged:
		s.state.HostAcknowledged = true
		s.setBlink(false)
	case s.state.HostAcknowledged && !input.Heartbeat:
		// Host requested power-off. Irreversible until controller reset.
		s.state.PowerEnabled = false
		s.setBlink(false)
		s.state.LEDLevel = false
	}

	// Switched power phase.
	if input.SwitchedPower {
		s.notify = false
		if s.state.PowerEnabled {
			s.setBlink(false)
			s.state.LEDLevel = true
		}
	} else {
		s.notify = true
		if s.state.PowerEnabled {
			s.setBlink(true)
		}
	}

	var events []Event
	emit := func(t EventType) {
		events = append(events, Event{
			Timestamp: input.Time,
			Type:      t,
			State:     s.state,
			Outputs:   s.Outputs(),
		})
	}

	if !prev.HostAcknowledged && s.state.HostAcknowledged {
		emit(EventHostStarted)
	}
	if prev.PowerEnabled && !s.state.PowerEnabled {
		emit(EventHostShutdown)
	}
	if first || prevNotify != s.notify {
		if s.notify {
			emit(EventSwitchedOff)
		} else {
			emit(EventSwitchedOn)
		}
	}

	for _, e := range events {
		switch e.Type {
		case EventHostStarted:
			s.counts.HostStarted++
		case EventHostShutdown:
			s.counts.HostShutdown++
		case EventSwitchedOn:
			s.counts.SwitchedOn++
		case EventSwitchedOff:
			s.counts.SwitchedOff++
		}
	}

	return events
}

// Tick handles one blink timer tick. It returns true if the LED level was
// inverted and must be written to the output.
func (s *Sequencer) Tick() bool {
	if !s.blink.Tick() {
		return false
	}
	s.state.LEDLevel = !s.state.LEDLevel
	return true
}

func (s *Sequencer) setBlink(enabled bool) {
	s.blink.SetEnabled(enabled)
	s.state.BlinkEnabled = enabled
}

// Outputs returns the levels currently commanded on the three outputs.
func (s *Sequencer) Outputs() Outputs {
	return Outputs{
		PowerEnable: s.state.PowerEnabled,
		HostNotify:  s.notify,
		LED:         s.state.LEDLevel,
	}
}

// State returns a copy of the state record.
func (s *Sequencer) State() State {
	return s.state
}

// Phase returns the operator-visible phase.
func (s *Sequencer) Phase() Phase {
	switch {
	case !s.ran:
		return PhaseBooting
	case !s.state.PowerEnabled:
		return PhasePoweredOff
	case s.state.BlinkEnabled:
		return PhaseWaiting
	default:
		return PhaseRunning
	}
}

// EventCountsSnapshot returns a copy of the event counts.
func (s *Sequencer) EventCountsSnapshot() EventCounts {
	return s.counts
}

// CheckReport returns report data if the interval has elapsed since the
// last report (or boot). Returns nil if the interval has not elapsed or if
// interval is <= 0 (disabled).
func (s *Sequencer) CheckReport(now time.Time, interval time.Duration) *ReportData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(s.lastReport) < interval {
		return nil
	}

	s.lastReport = now
	return &ReportData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Counts:    s.counts,
	}
}
