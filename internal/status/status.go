// Package status provides a thread-safe status tracker for the power-sequencer daemon.
// The event loop writes it; HTTP handlers and metrics read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/power-sequencer/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip           string
	TickMs         int64
	BlinkMs        int64
	ReportMs       int64
	BlinkAtBoot    bool
	EvaluateAtBoot bool
	Broker         string
	HTTPAddr       string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Outputs       logic.Outputs
	Phase         logic.Phase
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Phase:     logic.PhaseBooting,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update copies the sequencer's state record, outputs, phase and counts.
// Called from the event loop after every state machine run and LED toggle.
func (t *Tracker) Update(seq *logic.Sequencer) {
	st, out, phase, counts := seq.State(), seq.Outputs(), seq.Phase(), seq.EventCountsSnapshot()
	t.mu.Lock()
	t.snap.State = st
	t.snap.Outputs = out
	t.snap.Phase = phase
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
