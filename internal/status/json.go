package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/power-sequencer/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string     `json:"event,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Phase            string     `json:"phase"`
	Power            string     `json:"power"`
	LED              string     `json:"led"`
	Blink            string     `json:"blink"`
	SwitchedPower    string     `json:"switched_power"`
	HostAcknowledged bool       `json:"host_acknowledged"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	StartTime        string     `json:"start_time"`
	Timestamp        string     `json:"timestamp"`
	MQTT             MQTTStatus `json:"mqtt"`
	Counts           CountsJSON `json:"event_counts"`
	Config           ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	HostStarted  int `json:"host_started"`
	HostShutdown int `json:"host_shutdown"`
	SwitchedOn   int `json:"switched_on"`
	SwitchedOff  int `json:"switched_off"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip           string `json:"chip"`
	TickMs         int64  `json:"tick_ms"`
	BlinkMs        int64  `json:"blink_ms"`
	ReportMs       int64  `json:"report_ms"`
	BlinkAtBoot    bool   `json:"blink_at_boot"`
	EvaluateAtBoot bool   `json:"evaluate_at_boot"`
	Broker         string `json:"broker"`
	HTTPAddr       string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	return StatusInner{
		Phase:            phase,
		Power:            string(logic.LevelOf(snap.Outputs.PowerEnable)),
		LED:              string(logic.LevelOf(snap.Outputs.LED)),
		Blink:            string(logic.LevelOf(snap.State.BlinkEnabled)),
		SwitchedPower:    snap.Outputs.SwitchedLabel(),
		HostAcknowledged: snap.State.HostAcknowledged,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			HostStarted:  snap.Counts.HostStarted,
			HostShutdown: snap.Counts.HostShutdown,
			SwitchedOn:   snap.Counts.SwitchedOn,
			SwitchedOff:  snap.Counts.SwitchedOff,
		},
		Config: ConfigJSON{
			Chip:           snap.Config.Chip,
			TickMs:         snap.Config.TickMs,
			BlinkMs:        snap.Config.BlinkMs,
			ReportMs:       snap.Config.ReportMs,
			BlinkAtBoot:    snap.Config.BlinkAtBoot,
			EvaluateAtBoot: snap.Config.EvaluateAtBoot,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
