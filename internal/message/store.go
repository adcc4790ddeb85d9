package message

import (
	"sort"
	"sync"
	"time"
)

// TopicInfo is a derived, on-demand view of one observed topic.
// It is never stored; the store computes count and last-seen time, and
// callers with access to the subscription registry fill in Subscribed.
type TopicInfo struct {
	Name            string    `json:"name"`
	MessageCount    int       `json:"message_count"`
	LastMessageTime time.Time `json:"last_message_time"`
	Subscribed      bool      `json:"is_subscribed"`
}

// Store is the authoritative, append-only in-memory message history.
//
// Append order equals arrival order at the store. Messages are never
// mutated after append; they are removed only by an explicit clear.
// Every read operates on a snapshot taken under the lock, so callers
// never observe a half-mutated collection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The lock is never held while running caller code.
type Store struct {
	mu       sync.Mutex
	messages []Message
	ids      map[string]struct{}
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{
		ids: make(map[string]struct{}),
	}
}

// Append adds a message to the end of the history.
//
// Messages are de-duplicated by id: appending a message whose id is
// already present is a no-op and returns false. This absorbs the broker
// echoing back the bridge's own publishes, which are appended locally
// at send time.
func (s *Store) Append(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[msg.ID]; exists {
		return false
	}

	s.messages = append(s.messages, msg)
	s.ids[msg.ID] = struct{}{}
	return true
}

// QueryByTopic returns up to limit messages whose topic equals topic,
// ordered by timestamp descending (most recent first). Timestamp ties are
// broken by arrival order, descending. A non-positive limit returns nil.
func (s *Store) QueryByTopic(topic string, limit int) []Message {
	if limit <= 0 {
		return nil
	}

	type entry struct {
		msg     Message
		arrival int
	}

	s.mu.Lock()
	matches := make([]entry, 0)
	for i, msg := range s.messages {
		if msg.Topic == topic {
			matches = append(matches, entry{msg: msg, arrival: i})
		}
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		ti, tj := matches[i].msg.Timestamp, matches[j].msg.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matches[i].arrival > matches[j].arrival
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]Message, len(matches))
	for i, e := range matches {
		result[i] = e.msg
	}
	return result
}

// AggregateTopics returns one TopicInfo per distinct topic observed, each
// with its message count and most recent timestamp, ordered by last message
// time descending. Topics with a zero time sort last.
func (s *Store) AggregateTopics() []TopicInfo {
	s.mu.Lock()
	byTopic := make(map[string]*TopicInfo)
	for _, msg := range s.messages {
		info, ok := byTopic[msg.Topic]
		if !ok {
			info = &TopicInfo{Name: msg.Topic}
			byTopic[msg.Topic] = info
		}
		info.MessageCount++
		if msg.Timestamp.After(info.LastMessageTime) {
			info.LastMessageTime = msg.Timestamp
		}
	}
	s.mu.Unlock()

	result := make([]TopicInfo, 0, len(byTopic))
	for _, info := range byTopic {
		result = append(result, *info)
	}

	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].LastMessageTime, result[j].LastMessageTime
		if ti.IsZero() != tj.IsZero() {
			return tj.IsZero()
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// Topics returns the set of distinct topics observed so far.
func (s *Store) Topics() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make(map[string]struct{})
	for _, msg := range s.messages {
		topics[msg.Topic] = struct{}{}
	}
	return topics
}

// Len returns the total number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear removes all messages for the given topic and returns the count removed.
// Messages already delivered to live subscribers are unaffected.
func (s *Store) Clear(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	removed := 0
	for _, msg := range s.messages {
		if msg.Topic == topic {
			delete(s.ids, msg.ID)
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	s.messages = kept
	return removed
}

// ClearAll removes every stored message and returns the count removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.messages)
	s.messages = nil
	s.ids = make(map[string]struct{})
	return removed
}
