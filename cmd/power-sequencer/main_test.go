package main

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/power-sequencer/internal/gpio"
	"github.com/sweeney/power-sequencer/internal/logic"
	"github.com/sweeney/power-sequencer/internal/metrics"
	"github.com/sweeney/power-sequencer/internal/mqtt"
	"github.com/sweeney/power-sequencer/internal/status"
	"github.com/sweeney/power-sequencer/internal/systemd"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type harness struct {
	loop     *loop
	io       *gpio.FakeIO
	pub      *mqtt.FakePublisher
	notifier *systemd.FakeNotifier
	reg      *prometheus.Registry
}

// newHarness wires a loop to fakes. The sequencer blinks every 20 ticks,
// matching a 200ms half period on a 10ms tick.
func newHarness(samples ...gpio.Sample) *harness {
	seq := logic.NewSequencer(logic.Config{BlinkHalfPeriod: 20, BlinkAtBoot: true}, testStart)
	out := seq.Outputs()
	io := gpio.NewFakeIO(samples, gpio.Levels{
		PowerEnable: out.PowerEnable,
		HostNotify:  out.HostNotify,
		LED:         out.LED,
	})
	pub := mqtt.NewFakePublisher()
	notifier := systemd.NewFakeNotifier()
	reg := prometheus.NewRegistry()

	return &harness{
		loop: &loop{
			io:         io,
			seq:        seq,
			publisher:  pub,
			mqttStatus: pub,
			tracker:    status.NewTracker(testStart, status.Config{}),
			metrics:    metrics.New(reg),
			notifier:   notifier,
			now:        fakeClock(testStart, 100*time.Millisecond),
			written:    out,
		},
		io:       io,
		pub:      pub,
		notifier: notifier,
		reg:      reg,
	}
}

func (h *harness) evaluate(n int) {
	for i := 0; i < n; i++ {
		h.loop.evaluate()
	}
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.loop.tick()
	}
}

func assertEvents(t *testing.T, pub *mqtt.FakePublisher, want ...logic.EventType) {
	t.Helper()
	got := pub.EventTypes()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func assertWrites(t *testing.T, io *gpio.FakeIO, want ...gpio.Write) {
	t.Helper()
	if len(io.Writes) != len(want) {
		t.Fatalf("writes: got %v, want %v", io.Writes, want)
	}
	for i := range want {
		if io.Writes[i] != want[i] {
			t.Errorf("write %d: got %+v, want %+v", i, io.Writes[i], want[i])
		}
	}
}

func TestBootWithoutEvaluation(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: false})
	h.loop.boot(false)

	if names := h.pub.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Fatalf("system events: got %v, want [STARTUP]", names)
	}
	if !h.pub.SystemEvents[0].Retained {
		t.Error("expected STARTUP to be retained")
	}
	if len(h.pub.Events) != 0 {
		t.Errorf("expected no transitions, got %v", h.pub.EventTypes())
	}
	if len(h.io.Writes) != 0 {
		t.Errorf("expected no writes, got %v", h.io.Writes)
	}
	if h.notifier.Last() != "READY=BOOTING" {
		t.Errorf("notifier: got %q, want READY=BOOTING", h.notifier.Last())
	}
	if !h.io.PowerEnable || !h.io.LED || h.io.HostNotify {
		t.Errorf("boot levels: power=%v led=%v notify=%v", h.io.PowerEnable, h.io.LED, h.io.HostNotify)
	}
}

func TestBootEvaluatesCurrentInputs(t *testing.T) {
	// Ignition already off when the controller starts.
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: false})
	h.loop.boot(true)

	assertEvents(t, h.pub, logic.EventSwitchedOff)
	assertWrites(t, h.io, gpio.Write{Signal: gpio.SignalNotify, Value: true})
	if h.notifier.Last() != "READY=WAITING" {
		t.Errorf("notifier: got %q, want READY=WAITING", h.notifier.Last())
	}
	if got := h.loop.tracker.Snapshot().Phase; got != logic.PhaseWaiting {
		t.Errorf("tracker phase: got %s, want WAITING", got)
	}
}

func TestScenarioSwitchedPresentBeforeHost(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: true, Heartbeat: false})
	h.evaluate(1)

	assertEvents(t, h.pub, logic.EventSwitchedOn)
	assertWrites(t, h.io)
	if !h.io.PowerEnable || h.io.HostNotify || !h.io.LED {
		t.Errorf("levels: power=%v notify=%v led=%v", h.io.PowerEnable, h.io.HostNotify, h.io.LED)
	}

	// LED is solid: no toggles however long the timer runs.
	h.ticks(100)
	assertWrites(t, h.io)
}

func TestScenarioHostStarts(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: true, Heartbeat: false},
		gpio.Sample{Switched: true, Heartbeat: true},
	)
	h.evaluate(2)

	assertEvents(t, h.pub, logic.EventSwitchedOn, logic.EventHostStarted)
	assertWrites(t, h.io)
	if !h.loop.seq.State().HostAcknowledged {
		t.Error("expected host acknowledged")
	}
}

func TestScenarioHostRequestsShutdown(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: true, Heartbeat: false},
		gpio.Sample{Switched: true, Heartbeat: true},
		gpio.Sample{Switched: true, Heartbeat: false},
	)
	h.evaluate(3)

	assertEvents(t, h.pub, logic.EventSwitchedOn, logic.EventHostStarted, logic.EventHostShutdown)
	assertWrites(t, h.io,
		gpio.Write{Signal: gpio.SignalPower, Value: false},
		gpio.Write{Signal: gpio.SignalLED, Value: false},
	)
	if h.notifier.Last() != "STATUS=POWERED_OFF" {
		t.Errorf("notifier: got %q, want STATUS=POWERED_OFF", h.notifier.Last())
	}
}

func TestScenarioSwitchedAbsentBlinks(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: false})
	h.evaluate(1)

	assertEvents(t, h.pub, logic.EventSwitchedOff)
	assertWrites(t, h.io, gpio.Write{Signal: gpio.SignalNotify, Value: true})

	h.ticks(19)
	if len(h.io.Writes) != 1 {
		t.Fatalf("LED toggled early: %v", h.io.Writes)
	}
	h.ticks(1)
	h.ticks(20)
	assertWrites(t, h.io,
		gpio.Write{Signal: gpio.SignalNotify, Value: true},
		gpio.Write{Signal: gpio.SignalLED, Value: false},
		gpio.Write{Signal: gpio.SignalLED, Value: true},
	)

	expected := `
# HELP power_sequencer_led_toggles_total LED inversions performed by the blink timer.
# TYPE power_sequencer_led_toggles_total counter
power_sequencer_led_toggles_total 2
`
	if err := testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "power_sequencer_led_toggles_total"); err != nil {
		t.Error(err)
	}
}

func TestSwitchedReturnsStopsBlinking(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: false, Heartbeat: true},
		gpio.Sample{Switched: true, Heartbeat: true},
	)
	h.evaluate(1)
	h.ticks(20) // LED now off

	h.evaluate(1)
	assertEvents(t, h.pub, logic.EventHostStarted, logic.EventSwitchedOff, logic.EventSwitchedOn)
	if !h.io.LED || h.io.HostNotify {
		t.Errorf("levels: led=%v notify=%v, want LED on and notify low", h.io.LED, h.io.HostNotify)
	}

	writes := len(h.io.Writes)
	h.ticks(100)
	if len(h.io.Writes) != writes {
		t.Errorf("LED toggled after switched power returned: %v", h.io.Writes[writes:])
	}
}

func TestShutdownIsTerminal(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: false, Heartbeat: true},
		gpio.Sample{Switched: false, Heartbeat: false},
		gpio.Sample{Switched: true, Heartbeat: true},
		gpio.Sample{Switched: false, Heartbeat: true},
	)
	h.evaluate(4)
	h.ticks(100)

	if h.io.PowerEnable {
		t.Error("power re-enabled after host shutdown")
	}
	if h.io.LED {
		t.Error("LED lit after host shutdown")
	}
	for _, w := range h.io.Writes {
		if w.Signal == gpio.SignalPower && w.Value {
			t.Errorf("unexpected power-enable write: %+v", w)
		}
		if w.Signal == gpio.SignalLED && w.Value {
			t.Errorf("unexpected LED-on write: %+v", w)
		}
	}
	// Host-notify still follows switched power.
	if !h.io.HostNotify {
		t.Error("expected host-notify high with switched power absent")
	}
}

func TestRepeatedNotificationsAreIdempotent(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: true})
	h.evaluate(5)

	assertEvents(t, h.pub, logic.EventHostStarted, logic.EventSwitchedOff)
	assertWrites(t, h.io, gpio.Write{Signal: gpio.SignalNotify, Value: true})
}

func TestGPIOReadError(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: false})
	h.io.ReadError = errors.New("gpio fault")
	h.evaluate(2)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected no events, got %v", h.pub.EventTypes())
	}
	if h.loop.seq.Phase() != logic.PhaseBooting {
		t.Errorf("phase: got %s, want BOOTING", h.loop.seq.Phase())
	}

	expected := `
# HELP power_sequencer_gpio_errors_total GPIO read and write failures.
# TYPE power_sequencer_gpio_errors_total counter
power_sequencer_gpio_errors_total{op="read"} 2
`
	if err := testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "power_sequencer_gpio_errors_total"); err != nil {
		t.Error(err)
	}

	// Recovers once reads succeed.
	h.io.ReadError = nil
	h.evaluate(1)
	assertEvents(t, h.pub, logic.EventSwitchedOff)
}

func TestGPIOWriteErrorDoesNotStopSequencing(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: false})
	h.io.WriteError = errors.New("line busy")
	h.evaluate(1)

	assertEvents(t, h.pub, logic.EventSwitchedOff)
	if !h.loop.seq.Outputs().HostNotify {
		t.Error("expected commanded host-notify high despite write error")
	}

	expected := `
# HELP power_sequencer_gpio_errors_total GPIO read and write failures.
# TYPE power_sequencer_gpio_errors_total counter
power_sequencer_gpio_errors_total{op="write"} 1
`
	if err := testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "power_sequencer_gpio_errors_total"); err != nil {
		t.Error(err)
	}
}

func TestFailedPowerWriteRetriedOnNextNotification(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: true, Heartbeat: false},
		gpio.Sample{Switched: true, Heartbeat: true},
		gpio.Sample{Switched: true, Heartbeat: false},
	)
	h.evaluate(2)

	h.io.WriteError = errors.New("line busy")
	h.evaluate(1)
	assertEvents(t, h.pub, logic.EventSwitchedOn, logic.EventHostStarted, logic.EventHostShutdown)
	if !h.io.PowerEnable {
		t.Fatal("expected power line untouched while writes fail")
	}

	// The repeated sample produces no transition, but the line must still
	// be driven to the commanded level.
	h.io.WriteError = nil
	h.evaluate(1)
	assertEvents(t, h.pub, logic.EventSwitchedOn, logic.EventHostStarted, logic.EventHostShutdown)
	if h.io.PowerEnable {
		t.Error("expected power cut once writes succeed")
	}
	assertWrites(t, h.io,
		gpio.Write{Signal: gpio.SignalPower, Value: false},
		gpio.Write{Signal: gpio.SignalLED, Value: false},
	)
}

func TestFailedPowerWriteRetriedOnTick(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: true, Heartbeat: false},
		gpio.Sample{Switched: true, Heartbeat: true},
		gpio.Sample{Switched: true, Heartbeat: false},
	)
	h.evaluate(2)
	h.io.WriteError = errors.New("line busy")
	h.evaluate(1)

	h.ticks(1)
	if !h.io.PowerEnable {
		t.Fatal("expected power line untouched while writes fail")
	}

	h.io.WriteError = nil
	h.ticks(1)
	if h.io.PowerEnable {
		t.Error("expected power cut on the next tick once writes succeed")
	}

	n := len(h.io.Writes)
	h.ticks(1)
	if len(h.io.Writes) != n {
		t.Errorf("expected no further writes, got %v", h.io.Writes[n:])
	}
}

func TestFailedLEDToggleRetried(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: false, Heartbeat: false})
	h.evaluate(1)

	h.io.WriteError = errors.New("line busy")
	h.ticks(20)
	if h.io.LED == h.loop.seq.Outputs().LED {
		t.Fatal("expected LED line behind the commanded level")
	}

	h.io.WriteError = nil
	h.ticks(1)
	if h.io.LED != h.loop.seq.Outputs().LED {
		t.Errorf("LED: got %v, want %v", h.io.LED, h.loop.seq.Outputs().LED)
	}
}

func TestPublishErrorDoesNotStopSequencing(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: true, Heartbeat: true},
		gpio.Sample{Switched: true, Heartbeat: false},
	)
	h.pub.PublishError = errors.New("broker unavailable")
	h.evaluate(2)

	if h.io.PowerEnable {
		t.Error("expected power cut despite publish errors")
	}
	if len(h.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(h.pub.Events))
	}
}

func TestTrackerFollowsSequencer(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: true, Heartbeat: true})
	h.pub.Connected = true
	h.evaluate(1)

	snap := h.loop.tracker.Snapshot()
	if snap.Phase != logic.PhaseRunning {
		t.Errorf("phase: got %s, want RUNNING", snap.Phase)
	}
	if snap.Counts.HostStarted != 1 || snap.Counts.SwitchedOn != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected in snapshot")
	}
}

func TestReport(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: true})
	h.loop.report = 15 * time.Minute
	h.loop.now = fakeClock(testStart.Add(5*time.Minute), 5*time.Minute)

	h.ticks(2)
	if len(h.pub.SystemEvents) != 0 {
		t.Fatalf("report fired early: %v", h.pub.SystemEventNames())
	}

	h.ticks(1)
	if names := h.pub.SystemEventNames(); len(names) != 1 || names[0] != "REPORT" {
		t.Fatalf("system events: got %v, want [REPORT]", names)
	}
	report := h.pub.SystemEvents[0]
	if !report.Timestamp.Equal(testStart.Add(15 * time.Minute)) {
		t.Errorf("timestamp: got %v", report.Timestamp)
	}
	if report.Retained {
		t.Error("REPORT should not be retained")
	}
	if len(report.RawPayload) == 0 {
		t.Error("expected status payload on REPORT")
	}
}

func TestReportDisabled(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: true})
	h.loop.now = fakeClock(testStart, time.Hour)
	h.ticks(10)

	if len(h.pub.SystemEvents) != 0 {
		t.Errorf("expected no reports, got %v", h.pub.SystemEventNames())
	}
}

// edgeIO replaces FakeIO's coalescing channel with an unbuffered one so
// each edge is handed to the loop synchronously.
type edgeIO struct {
	*gpio.FakeIO
	edges chan struct{}
}

func (e *edgeIO) Changes() <-chan struct{} { return e.edges }

type runChans struct {
	edges    chan struct{}
	tick     chan time.Time
	watchdog chan time.Time
	sig      chan os.Signal
}

// runLoop drives loop.run on its own goroutine. Every send in drive blocks
// until the loop has taken it, so steps are processed in order.
func runLoop(t *testing.T, h *harness, drive func(c runChans)) error {
	t.Helper()
	c := runChans{
		edges:    make(chan struct{}),
		tick:     make(chan time.Time),
		watchdog: make(chan time.Time),
		sig:      make(chan os.Signal),
	}
	h.loop.io = &edgeIO{FakeIO: h.io, edges: c.edges}

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.loop.run(c.tick, c.watchdog, c.sig)
	}()

	drive(c)
	return <-errCh
}

func TestRunLoopFullCycle(t *testing.T) {
	h := newHarness(
		gpio.Sample{Switched: true, Heartbeat: false},
		gpio.Sample{Switched: true, Heartbeat: true},
		gpio.Sample{Switched: false, Heartbeat: true},
		gpio.Sample{Switched: false, Heartbeat: false},
	)

	err := runLoop(t, h, func(c runChans) {
		c.edges <- struct{}{}
		c.edges <- struct{}{}
		c.edges <- struct{}{}
		for i := 0; i < 20; i++ {
			c.tick <- time.Time{}
		}
		c.edges <- struct{}{}
		c.watchdog <- time.Time{}
		c.sig <- syscall.SIGTERM
	})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	assertEvents(t, h.pub,
		logic.EventSwitchedOn,
		logic.EventHostStarted,
		logic.EventSwitchedOff,
		logic.EventHostShutdown,
	)
	assertWrites(t, h.io,
		gpio.Write{Signal: gpio.SignalNotify, Value: true},
		gpio.Write{Signal: gpio.SignalLED, Value: false}, // blink toggle
		gpio.Write{Signal: gpio.SignalPower, Value: false},
	)

	want := []string{
		"STATUS=RUNNING",
		"STATUS=RUNNING",
		"STATUS=WAITING",
		"STATUS=POWERED_OFF",
		"WATCHDOG",
		"STOPPING",
	}
	if len(h.notifier.States) != len(want) {
		t.Fatalf("notifier: got %v, want %v", h.notifier.States, want)
	}
	for i := range want {
		if h.notifier.States[i] != want[i] {
			t.Errorf("notifier %d: got %q, want %q", i, h.notifier.States[i], want[i])
		}
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	for _, tc := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			h := newHarness(gpio.Sample{Switched: true})
			err := runLoop(t, h, func(c runChans) { c.sig <- tc.sig })
			if err != nil {
				t.Fatalf("run returned error: %v", err)
			}

			if len(h.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
			}
			se := h.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tc.want {
				t.Errorf("reason: got %q, want %q", se.Reason, tc.want)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}
			if h.notifier.Last() != "STOPPING" {
				t.Errorf("notifier: got %q, want STOPPING", h.notifier.Last())
			}
		})
	}
}

func TestRunLoopShutdownPublishError(t *testing.T) {
	h := newHarness(gpio.Sample{Switched: true})
	h.pub.PublishSystemError = errors.New("broker unavailable")

	err := runLoop(t, h, func(c runChans) { c.sig <- syscall.SIGTERM })
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q, want UNKNOWN", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %q", got)
	}
}

func TestPresence(t *testing.T) {
	if presence(true) != "PRESENT" || presence(false) != "ABSENT" {
		t.Errorf("presence: got %q/%q", presence(true), presence(false))
	}
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", "", "--tick", "0"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestRootCommandMissingConfigFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", t.TempDir() + "/missing.toml"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}
