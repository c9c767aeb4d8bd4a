package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/power-sequencer/internal/logic"
)

const (
	clientID       = "power-sequencer"
	bufferCapacity = 100
	publishTimeout = 5 * time.Second
)

var errClosed = errors.New("mqtt: publisher closed")

// RealPublisher publishes to an actual MQTT broker.
// The broker often lives on the host being powered, so connecting never
// blocks boot: messages published while disconnected are buffered and
// replayed on (re)connect.
//
// Publish and PublishSystem only queue the message. A single goroutine
// drains the queue and waits on the broker, so the caller's event loop
// never does.
type RealPublisher struct {
	client  paho.Client
	timeout time.Duration

	outbox chan Message
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	buf    *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background.
func NewRealPublisher(broker string) *RealPublisher {
	p := newRealPublisher(publishTimeout)

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.start(paho.NewClient(opts))
	return p
}

func newRealPublisher(timeout time.Duration) *RealPublisher {
	return &RealPublisher{
		timeout: timeout,
		outbox:  make(chan Message, bufferCapacity),
		done:    make(chan struct{}),
		buf:     newRingBuffer(bufferCapacity),
	}
}

func (p *RealPublisher) start(c paho.Client) {
	p.client = c
	go p.run()
	c.Connect()
}

func (p *RealPublisher) run() {
	defer close(p.done)
	for m := range p.outbox {
		p.deliver(m)
	}
}

func (p *RealPublisher) deliver(m Message) {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(m)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	token := p.client.Publish(m.Topic, m.QoS, m.Retained, m.Payload)
	if !token.WaitTimeout(p.timeout) {
		log.Printf("mqtt: publish to %s: timeout", m.Topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("mqtt: publish to %s: %v", m.Topic, err)
	}
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	// Runs on the client's goroutine; tokens are not awaited here.
	for _, m := range msgs {
		c.Publish(m.Topic, m.QoS, m.Retained, m.Payload)
	}
}

// send queues m for the delivery goroutine without waiting.
func (p *RealPublisher) send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	select {
	case p.outbox <- m:
		return nil
	default:
		return fmt.Errorf("publish to %s: outbox full", m.Topic)
	}
}

// Publish queues a sequencer transition for the broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	m, err := TransitionMessage(event)
	if err != nil {
		return err
	}
	return p.send(m)
}

// PublishSystem queues a daemon lifecycle event for the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	m, err := SystemMessage(event)
	if err != nil {
		return err
	}
	return p.send(m)
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close stops accepting messages, gives the queue up to the publish
// timeout to drain, then disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.outbox)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.timeout):
		log.Printf("mqtt: close: %d messages still queued", len(p.outbox))
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
