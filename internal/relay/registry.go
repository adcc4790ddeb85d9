package relay

import (
	"sort"
	"strings"
	"sync"
)

// TopicRegistry is the set of topic filters the bridge wants subscribed.
//
// Filters may use MQTT wildcards (+ and #). The registry is the source of
// truth for resubscription: after every successful (re)connection the
// bridge subscribes each filter from a point-in-time snapshot, never
// holding the registry lock during network calls.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type TopicRegistry struct {
	mu     sync.Mutex
	topics map[string]struct{}
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]struct{}),
	}
}

// Add inserts a topic filter. It reports whether the filter was newly
// added; adding an existing filter is a no-op, so subscribing twice to
// the same topic leaves exactly one entry.
func (r *TopicRegistry) Add(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.topics[topic]; exists {
		return false
	}
	r.topics[topic] = struct{}{}
	return true
}

// Remove deletes a topic filter. It reports whether the filter was present.
func (r *TopicRegistry) Remove(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.topics[topic]; !exists {
		return false
	}
	delete(r.topics, topic)
	return true
}

// Contains reports whether the exact filter string is registered.
func (r *TopicRegistry) Contains(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.topics[topic]
	return exists
}

// Snapshot returns a sorted point-in-time copy of the registered filters.
// Callers act on the copy after the lock is released.
func (r *TopicRegistry) Snapshot() []string {
	r.mu.Lock()
	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	r.mu.Unlock()

	sort.Strings(topics)
	return topics
}

// Matches reports whether any registered filter matches the given concrete
// topic, honouring MQTT wildcard semantics.
func (r *TopicRegistry) Matches(topic string) bool {
	for _, filter := range r.Snapshot() {
		if TopicMatches(filter, topic) {
			return true
		}
	}
	return false
}

// Len returns the number of registered filters.
func (r *TopicRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// TopicMatches reports whether an MQTT topic filter matches a concrete topic.
//
// Wildcard rules:
//   - "+" matches exactly one topic level
//   - "#" matches the remainder of the topic (any number of levels,
//     including none) and must be the final filter level
func TopicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return i == len(filterParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}
