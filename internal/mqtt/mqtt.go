// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/power-sequencer/internal/logic"
)

// Topic is the MQTT topic for sequencer transition events.
const Topic = "vehicle/power/sequencer/events"

// TopicSystem is the MQTT topic for daemon lifecycle events.
const TopicSystem = "vehicle/power/sequencer/system"

// Publisher publishes events to MQTT.
// Both publish methods are called from the event loop and must not wait on
// the broker.
type Publisher interface {
	// Publish sends a sequencer transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a daemon lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a daemon lifecycle event (e.g., startup, shutdown, report).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "REPORT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Message is a serialized event together with its routing.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// TransitionMessage routes a sequencer transition: QoS 0, never retained.
func TransitionMessage(event logic.Event) (Message, error) {
	payload, err := FormatPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format payload: %w", err)
	}
	return Message{Topic: Topic, Payload: payload}, nil
}

// SystemMessage routes a lifecycle event: QoS 1, retained when the event
// asks for it.
func SystemMessage(event SystemEvent) (Message, error) {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format system payload: %w", err)
	}
	return Message{Topic: TopicSystem, QoS: 1, Retained: event.Retained, Payload: payload}, nil
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Sequencer SequencerPayload `json:"sequencer"`
}

// SequencerPayload contains the transition details.
type SequencerPayload struct {
	Timestamp        string `json:"timestamp"`
	Event            string `json:"event"`
	Power            string `json:"power"`
	LED              string `json:"led"`
	Blink            string `json:"blink"`
	SwitchedPower    string `json:"switched_power"`
	HostAcknowledged bool   `json:"host_acknowledged"`
}

// FormatPayload creates the JSON payload for a sequencer transition.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Sequencer: SequencerPayload{
			Timestamp:        event.Timestamp.UTC().Format(time.RFC3339),
			Event:            string(event.Type),
			Power:            string(logic.LevelOf(event.Outputs.PowerEnable)),
			LED:              string(logic.LevelOf(event.Outputs.LED)),
			Blink:            string(logic.LevelOf(event.State.BlinkEnabled)),
			SwitchedPower:    event.Outputs.SwitchedLabel(),
			HostAcknowledged: event.State.HostAcknowledged,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher that drops everything. It is used when no broker
// is configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(logic.Event) error       { return nil }
func (discard) PublishSystem(SystemEvent) error { return nil }
func (discard) Close() error                    { return nil }
