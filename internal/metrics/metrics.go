// Package metrics exposes sequencer state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/power-sequencer/internal/logic"
)

const namespace = "power_sequencer"

// Collector holds the sequencer's gauges and counters.
type Collector struct {
	powerEnabled     prometheus.Gauge
	hostAcknowledged prometheus.Gauge
	blinkEnabled     prometheus.Gauge
	ledLevel         prometheus.Gauge
	hostNotify       prometheus.Gauge
	transitions      *prometheus.CounterVec
	ledToggles       prometheus.Counter
	gpioErrors       *prometheus.CounterVec
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		powerEnabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_enabled",
			Help:      "Whether the high-side switch is commanded on (1) or off (0).",
		}),
		hostAcknowledged: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_acknowledged",
			Help:      "Whether the host heartbeat has been seen high this power cycle.",
		}),
		blinkEnabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blink_enabled",
			Help:      "Whether the blink timer is toggling the status LED.",
		}),
		ledLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "led_level",
			Help:      "Commanded status LED level.",
		}),
		hostNotify: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_notify_level",
			Help:      "Commanded host-notify level (1 = switched power absent).",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Sequencer transitions by event type.",
		}, []string{"event"}),
		ledToggles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "led_toggles_total",
			Help:      "LED inversions performed by the blink timer.",
		}),
		gpioErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gpio_errors_total",
			Help:      "GPIO read and write failures.",
		}, []string{"op"}),
	}
}

// Observe sets the gauges from the sequencer's current state.
func (c *Collector) Observe(seq *logic.Sequencer) {
	st := seq.State()
	out := seq.Outputs()
	c.powerEnabled.Set(b2f(out.PowerEnable))
	c.hostAcknowledged.Set(b2f(st.HostAcknowledged))
	c.blinkEnabled.Set(b2f(st.BlinkEnabled))
	c.ledLevel.Set(b2f(out.LED))
	c.hostNotify.Set(b2f(out.HostNotify))
}

// Transition counts one sequencer event.
func (c *Collector) Transition(t logic.EventType) {
	c.transitions.WithLabelValues(string(t)).Inc()
}

// LEDToggled counts one blink timer inversion.
func (c *Collector) LEDToggled() {
	c.ledToggles.Inc()
}

// GPIOError counts a failed GPIO operation ("read" or "write").
func (c *Collector) GPIOError(op string) {
	c.gpioErrors.WithLabelValues(op).Inc()
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
