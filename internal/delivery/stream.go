package delivery

import (
	"context"
	"sync"

	"github.com/nerrad567/msgbridge/internal/message"
)

// Stream is one live subscription's view of the dispatcher.
//
// Messages matching the stream's filter are buffered in a bounded queue
// and consumed with Next. Cancellation is the expected terminal
// transition: it releases any waiting Next immediately and is reported as
// ErrStreamClosed, never as a spurious failure.
type Stream struct {
	id     uint64
	filter string
	queue  chan message.Message
	done   chan struct{}
	once   sync.Once
	d      *Dispatcher
}

// Next blocks until a message arrives, the stream is cancelled, or ctx is
// done.
//
// Returns:
//   - message.Message: the next matching message, in this stream's FIFO order
//   - error: ErrStreamClosed after Cancel, or ctx.Err() on context cancellation
func (s *Stream) Next(ctx context.Context) (message.Message, error) {
	// Cancellation is terminal: once observed, no further items are
	// emitted, even ones already buffered.
	select {
	case <-s.done:
		return message.Message{}, ErrStreamClosed
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	default:
	}

	select {
	case msg := <-s.queue:
		return msg, nil
	case <-s.done:
		return message.Message{}, ErrStreamClosed
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	}
}

// Cancel terminates the stream and detaches it from the dispatcher.
// It is safe to call multiple times and safe to call concurrently with
// Next.
func (s *Stream) Cancel() {
	s.once.Do(func() {
		if s.id != 0 {
			s.d.remove(s.id)
		}
		close(s.done)
	})
}

// Filter returns the stream's topic filter ("" means all topics).
func (s *Stream) Filter() string {
	return s.filter
}

// matches reports whether a topic passes this stream's filter.
func (s *Stream) matches(topic string) bool {
	return s.filter == "" || s.filter == topic
}
