package mqtt

import (
	"github.com/sweeney/power-sequencer/internal/logic"
)

// FakePublisher records what would have gone to the broker. It routes
// events through TransitionMessage and SystemMessage like RealPublisher,
// so tests see the same topic, QoS and retained flag.
type FakePublisher struct {
	// Events contains all sequencer transitions that were published.
	Events []logic.Event

	// SystemEvents contains all lifecycle events that were published.
	SystemEvents []SystemEvent

	// Messages contains every routed message in publish order.
	Messages []Message

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	Closed    bool
	Connected bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	m, err := TransitionMessage(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Messages = append(f.Messages, m)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	m, err := SystemMessage(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Messages = append(f.Messages, m)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Payloads returns the transition payloads in publish order.
func (f *FakePublisher) Payloads() [][]byte {
	return f.payloadsOn(Topic)
}

// SystemPayloads returns the lifecycle payloads in publish order.
func (f *FakePublisher) SystemPayloads() [][]byte {
	return f.payloadsOn(TopicSystem)
}

func (f *FakePublisher) payloadsOn(topic string) [][]byte {
	var out [][]byte
	for _, m := range f.Messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// EventTypes returns the type of every recorded transition.
func (f *FakePublisher) EventTypes() []logic.EventType {
	types := make([]logic.EventType, len(f.Events))
	for i, e := range f.Events {
		types[i] = e.Type
	}
	return types
}

// SystemEventNames returns the Event field of every recorded lifecycle event.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}
