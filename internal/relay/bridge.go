package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
	"github.com/nerrad567/msgbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/msgbridge/internal/message"
)

// BrokerClient is the slice of the MQTT client the bridge depends on.
// *mqtt.Client satisfies it; tests substitute a fake.
type BrokerClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	SetOnConnect(callback func())
}

// Sink receives every message the bridge accepts into the store.
// *delivery.Dispatcher satisfies it.
type Sink interface {
	Publish(msg message.Message)
}

// Options tunes bridge behaviour.
type Options struct {
	// QoS is the quality-of-service level for broker subscribes and publishes.
	QoS byte

	// InboundBuffer is the capacity of the channel between broker message
	// callbacks and the decode/store pipeline. When full, inbound payloads
	// are dropped with a diagnostic.
	InboundBuffer int
}

// defaultInboundBuffer is used when Options.InboundBuffer is unset.
const defaultInboundBuffer = 256

// Bridge connects the broker to the message store and the live-delivery
// dispatcher.
//
// It owns the topic registry and the inbound pipeline: broker callbacks
// enqueue raw payloads onto a channel, and a single bridge goroutine
// decodes them, appends to the store, and hands accepted messages to the
// sink. This decouples the paho client's callback goroutines from
// application logic.
//
// Connection loss is handled by the client's auto-reconnect; the bridge
// re-subscribes every registered filter from its OnConnect hook, reading a
// snapshot so the registry lock is never held during network calls.
type Bridge struct {
	client   BrokerClient
	registry *TopicRegistry
	store    *message.Store
	sink     Sink
	logger   *logging.Logger
	qos      byte

	inbound chan inboundPayload

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// inboundPayload is one raw broker delivery awaiting decode.
type inboundPayload struct {
	topic   string
	payload []byte
}

// New creates a Bridge over an already-constructed broker client.
func New(client BrokerClient, store *message.Store, sink Sink, logger *logging.Logger, opts Options) *Bridge {
	buffer := opts.InboundBuffer
	if buffer <= 0 {
		buffer = defaultInboundBuffer
	}

	return &Bridge{
		client:   client,
		registry: NewTopicRegistry(),
		store:    store,
		sink:     sink,
		logger:   logger,
		qos:      opts.QoS,
		inbound:  make(chan inboundPayload, buffer),
		stop:     make(chan struct{}),
	}
}

// Start attaches the reconnect hook and launches the inbound pipeline.
// It is idempotent; calling Start on a running bridge is a no-op, and a
// bridge stopped with Stop may be started again.
//
// The pipeline runs until ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	// Stop closed the previous channel; a restarted bridge needs a fresh one.
	b.stop = make(chan struct{})
	stop := b.stop
	b.mu.Unlock()

	// Re-subscribe the registry's filters after every (re)connection.
	b.client.SetOnConnect(func() {
		b.resubscribeAll()
	})

	// The client may already be connected; attach current filters now.
	if b.client.IsConnected() {
		b.resubscribeAll()
	}

	b.wg.Add(1)
	go b.run(ctx, stop)
}

// Stop shuts down the inbound pipeline and waits for it to drain.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	close(b.stop)
	b.mu.Unlock()

	b.wg.Wait()
}

// run is the decode/store/dispatch loop. It holds its own stop channel so
// a restart's fresh channel never races with a draining predecessor.
func (b *Bridge) run(ctx context.Context, stop <-chan struct{}) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case in := <-b.inbound:
			b.process(in)
		}
	}
}

// process decodes one inbound payload, stores it, and dispatches it to
// live subscribers. Duplicate ids (the broker echoing our own publishes)
// are stored-side no-ops and are not re-dispatched.
func (b *Bridge) process(in inboundPayload) {
	decoded := message.Decode(in.topic, in.payload)

	if !b.store.Append(decoded.Message) {
		b.logger.Debug("duplicate message suppressed",
			"topic", in.topic,
			"id", decoded.Message.ID,
		)
		return
	}

	b.logger.Debug("message received",
		"topic", in.topic,
		"id", decoded.Message.ID,
		"sender", decoded.Message.Sender,
		"structured", decoded.Kind == message.DecodeStructured,
	)

	b.sink.Publish(decoded.Message)
}

// handleInbound is the shared MQTT message handler. It copies the payload
// (paho may reuse the buffer) and enqueues it without blocking; if the
// pipeline cannot keep up the payload is dropped with a diagnostic.
func (b *Bridge) handleInbound(topic string, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case b.inbound <- inboundPayload{topic: topic, payload: buf}:
	default:
		b.logger.Warn("inbound buffer full, dropping payload", "topic", topic)
	}
	return nil
}

// resubscribeAll subscribes every registered filter using a snapshot.
// Errors are logged and skipped; the next reconnect retries them.
func (b *Bridge) resubscribeAll() {
	for _, topic := range b.registry.Snapshot() {
		if err := b.client.Subscribe(topic, b.qos, b.handleInbound); err != nil {
			b.logger.Warn("resubscribe failed", "topic", topic, "error", err)
			continue
		}
		b.logger.Info("subscribed to topic", "topic", topic)
	}
}

// Subscribe registers a topic filter and, if currently connected, issues
// the broker subscribe. When disconnected the broker call is deferred to
// the next successful connect.
func (b *Bridge) Subscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	b.registry.Add(topic)

	if !b.client.IsConnected() {
		b.logger.Info("subscription deferred until connect", "topic", topic)
		return nil
	}

	if err := b.client.Subscribe(topic, b.qos, b.handleInbound); err != nil {
		// The filter stays registered; the next reconnect retries it.
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	b.logger.Info("subscribed to topic", "topic", topic)
	return nil
}

// Unsubscribe removes a topic filter and, if currently connected, issues
// the broker unsubscribe.
func (b *Bridge) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	b.registry.Remove(topic)

	if !b.client.IsConnected() {
		return nil
	}

	if err := b.client.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}

	b.logger.Info("unsubscribed from topic", "topic", topic)
	return nil
}

// Publish sends a payload to the broker. Failures are returned to the
// caller; nothing is stored or dispatched here.
func (b *Bridge) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return b.client.Publish(topic, payload, b.qos, false)
}

// SubscribedTopics returns a sorted snapshot of the registered filters.
func (b *Bridge) SubscribedTopics() []string {
	return b.registry.Snapshot()
}

// IsSubscribed reports whether any registered filter matches the topic.
func (b *Bridge) IsSubscribed(topic string) bool {
	return b.registry.Matches(topic)
}

// Connected reports the broker connection state.
func (b *Bridge) Connected() bool {
	return b.client.IsConnected()
}
