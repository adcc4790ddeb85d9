package delivery

import (
	"sync"

	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
	"github.com/nerrad567/msgbridge/internal/message"
)

// Dispatcher fans newly stored messages out to live subscribers.
//
// Each subscriber gets its own bounded queue holding only messages that
// match its filter, so slow or mismatched consumers never contend with
// each other. When a subscriber's queue is full, new messages for that
// subscriber are dropped with a diagnostic; this is the documented
// fixed-capacity drop policy, not an error surfaced to the producer.
//
// No ordering is promised across subscribers. Within one stream, order is
// the FIFO order of what that stream's queue accepted.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Dispatcher struct {
	capacity int
	logger   *logging.Logger

	mu      sync.RWMutex
	streams map[uint64]*Stream
	nextID  uint64
	closed  bool
}

// New creates a Dispatcher with the given per-subscriber queue capacity.
func New(capacity int, logger *logging.Logger) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	return &Dispatcher{
		capacity: capacity,
		logger:   logger,
		streams:  make(map[uint64]*Stream),
	}
}

// Publish offers a message to every subscriber whose filter matches.
// It never blocks: a full subscriber queue drops the message for that
// subscriber only.
func (d *Dispatcher) Publish(msg message.Message) {
	// Snapshot under the read lock, send outside it.
	d.mu.RLock()
	streams := make([]*Stream, 0, len(d.streams))
	for _, s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.RUnlock()

	for _, s := range streams {
		if !s.matches(msg.Topic) {
			continue
		}
		select {
		case s.queue <- msg:
		default:
			d.logger.Warn("subscriber queue full, dropping message",
				"topic", msg.Topic,
				"id", msg.ID,
				"filter", s.filter,
			)
		}
	}
}

// Subscribe registers a live subscription. An empty filter accepts every
// topic; a non-empty filter accepts only messages with exactly that topic.
//
// The returned stream must be cancelled when the caller is done with it.
// Subscribing on a closed dispatcher returns an already-terminated stream.
func (d *Dispatcher) Subscribe(filter string) *Stream {
	s := &Stream{
		filter: filter,
		queue:  make(chan message.Message, d.capacity),
		done:   make(chan struct{}),
		d:      d,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(s.done)
		return s
	}
	d.nextID++
	s.id = d.nextID
	d.streams[s.id] = s
	d.mu.Unlock()

	return s
}

// SubscriberCount returns the number of active streams.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.streams)
}

// Close terminates every active stream and rejects future subscriptions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	streams := make([]*Stream, 0, len(d.streams))
	for _, s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.Unlock()

	for _, s := range streams {
		s.Cancel()
	}
}

// remove detaches a stream; called from Stream.Cancel.
func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	delete(d.streams, id)
	d.mu.Unlock()
}
