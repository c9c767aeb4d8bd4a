package main

import (
	"log"
	"os"
	"time"

	"github.com/sweeney/power-sequencer/internal/gpio"
	"github.com/sweeney/power-sequencer/internal/logic"
	"github.com/sweeney/power-sequencer/internal/metrics"
	"github.com/sweeney/power-sequencer/internal/mqtt"
	"github.com/sweeney/power-sequencer/internal/status"
	"github.com/sweeney/power-sequencer/internal/systemd"
)

// loop is the single execution context that owns the sequencer. Input
// changes, blink ticks and signals are all handled on the goroutine that
// calls run, so the state machine and the blink timer never interleave.
type loop struct {
	io         gpio.IO
	seq        *logic.Sequencer
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	tracker    *status.Tracker
	metrics    *metrics.Collector
	notifier   systemd.Notifier
	report     time.Duration
	now        func() time.Time

	// written holds the levels last driven successfully onto each output.
	// It starts at the levels the lines were requested with.
	written logic.Outputs
	failing map[string]bool
}

// boot announces startup and optionally runs the state machine once against
// the current input levels, so a change that happened before edge detection
// was armed is not missed.
func (l *loop) boot(evaluate bool) {
	l.refresh()
	snap := l.tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := l.publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	if evaluate {
		l.evaluate()
	}
	l.notifier.Ready(string(l.seq.Phase()))
}

func (l *loop) run(tick, watchdog <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil
		case <-l.io.Changes():
			l.evaluate()
		case <-tick:
			l.tick()
		case <-watchdog:
			l.notifier.Watchdog()
		}
	}
}

// evaluate samples both inputs, runs the state machine and drives any
// output that differs from its commanded level.
func (l *loop) evaluate() {
	t := l.now()
	switched, heartbeat, err := l.io.Read()
	if err != nil {
		log.Printf("gpio read error: %v", err)
		l.metrics.GPIOError("read")
		return
	}

	events := l.seq.HandleInputChange(logic.Input{
		SwitchedPower: switched,
		Heartbeat:     heartbeat,
		Time:          t,
	})
	l.apply()

	for _, event := range events {
		log.Printf("event: %s (power=%s led=%s switched=%s)", event.Type,
			logic.LevelOf(event.Outputs.PowerEnable), logic.LevelOf(event.Outputs.LED), event.Outputs.SwitchedLabel())
		l.metrics.Transition(event.Type)
		if err := l.publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	l.refresh()
	if len(events) > 0 {
		l.notifier.Status(string(l.seq.Phase()))
	}
}

// apply drives every output whose last successful write differs from the
// commanded level, power-enable first. A failed write is retried on the
// next call.
func (l *loop) apply() {
	want := l.seq.Outputs()
	write := func(name string, set func(bool) error, have *bool, v bool) {
		if *have == v {
			return
		}
		if err := set(v); err != nil {
			if !l.failing[name] {
				log.Printf("gpio write %s error: %v", name, err)
			}
			if l.failing == nil {
				l.failing = make(map[string]bool)
			}
			l.failing[name] = true
			l.metrics.GPIOError("write")
			return
		}
		if l.failing[name] {
			log.Printf("gpio write %s recovered", name)
			delete(l.failing, name)
		}
		*have = v
	}
	write("power", l.io.SetPowerEnable, &l.written.PowerEnable, want.PowerEnable)
	write("notify", l.io.SetHostNotify, &l.written.HostNotify, want.HostNotify)
	write("led", l.io.SetLED, &l.written.LED, want.LED)
}

// tick advances the blink timer, retries outputs still pending from a
// failed write and emits the periodic report when due.
func (l *loop) tick() {
	toggled := l.seq.Tick()
	l.apply()
	if toggled {
		l.metrics.LEDToggled()
		l.refresh()
	}

	if l.report <= 0 {
		return
	}
	r := l.seq.CheckReport(l.now(), l.report)
	if r == nil {
		return
	}
	log.Printf("report: uptime=%v host_started=%d host_shutdown=%d switched_on=%d switched_off=%d",
		r.Uptime, r.Counts.HostStarted, r.Counts.HostShutdown, r.Counts.SwitchedOn, r.Counts.SwitchedOff)

	l.refresh()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  r.Timestamp,
		Event:      "REPORT",
		RawPayload: status.FormatStatusEvent(snap, "REPORT", ""),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("report publish error: %v", err)
	}
}

func (l *loop) shutdown(s os.Signal) {
	name := signalName(s)
	log.Printf("received %v, shutting down", s)
	l.notifier.Stopping()

	l.refresh()
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     name,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", name),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// refresh copies sequencer state to the HTTP and metrics consumers.
func (l *loop) refresh() {
	l.tracker.Update(l.seq)
	l.metrics.Observe(l.seq)
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}
