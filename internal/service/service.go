package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/msgbridge/internal/delivery"
	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
	"github.com/nerrad567/msgbridge/internal/message"
)

// DefaultQueryLimit is used when a query does not specify a limit.
const DefaultQueryLimit = 50

// Broker is the slice of the relay bridge the service depends on.
// *relay.Bridge satisfies it; tests substitute a fake.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	SubscribedTopics() []string
	IsSubscribed(topic string) bool
	Connected() bool
}

// Status is the read-only diagnostic view of the bridge.
type Status struct {
	Connected        bool     `json:"connected"`
	SubscribedTopics []string `json:"subscribed_topics"`
	MessageCount     int      `json:"message_count"`
	Topics           []string `json:"topics"`
}

// BridgeService translates external read/mutate/subscribe calls onto the
// store, registry, bridge, and dispatcher. It holds no state of its own
// beyond its collaborators.
type BridgeService struct {
	store      *message.Store
	broker     Broker
	dispatcher *delivery.Dispatcher
	logger     *logging.Logger

	activityInterval time.Duration
}

// New creates a BridgeService.
func New(store *message.Store, broker Broker, dispatcher *delivery.Dispatcher, logger *logging.Logger, activityInterval time.Duration) *BridgeService {
	if activityInterval <= 0 {
		activityInterval = 2 * time.Second
	}
	return &BridgeService{
		store:            store,
		broker:           broker,
		dispatcher:       dispatcher,
		logger:           logger,
		activityInterval: activityInterval,
	}
}

// =============================================================================
// Reads
// =============================================================================

// QueryTopic returns up to limit messages for a topic, most recent first.
// A non-positive limit uses DefaultQueryLimit.
func (s *BridgeService) QueryTopic(topic string, limit int) []message.Message {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return s.store.QueryByTopic(topic, limit)
}

// QueryAllTopics returns one TopicInfo per observed topic, most recently
// active first, with the subscribed flag computed from the registry.
func (s *BridgeService) QueryAllTopics() []message.TopicInfo {
	infos := s.store.AggregateTopics()
	for i := range infos {
		infos[i].Subscribed = s.broker.IsSubscribed(infos[i].Name)
	}
	return infos
}

// QuerySubscribedTopics returns the currently registered topic filters.
func (s *BridgeService) QuerySubscribedTopics() []string {
	return s.broker.SubscribedTopics()
}

// Status returns the diagnostic view: informational only.
func (s *BridgeService) Status() Status {
	topicSet := s.store.Topics()
	topics := make([]string, 0, len(topicSet))
	for topic := range topicSet {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	return Status{
		Connected:        s.broker.Connected(),
		SubscribedTopics: s.broker.SubscribedTopics(),
		MessageCount:     s.store.Len(),
		Topics:           topics,
	}
}

// =============================================================================
// Mutations
// =============================================================================

// SendToTopic publishes content to a broker topic and records the message
// locally.
//
// The message is appended to the store and dispatched to live subscribers
// only after the broker accepts the publish, so a failed send leaves no
// trace in history. The broker's echo of this publish is de-duplicated by
// id on the inbound path.
//
// An empty sender defaults to the local client marker.
func (s *BridgeService) SendToTopic(topic, content, sender string) (message.Message, error) {
	if topic == "" {
		return message.Message{}, ErrEmptyTopic
	}

	msg := message.New(topic, content, sender)

	payload, err := message.EncodeWire(msg)
	if err != nil {
		return message.Message{}, fmt.Errorf("encoding message: %w", err)
	}

	if err := s.broker.Publish(topic, payload); err != nil {
		return message.Message{}, fmt.Errorf("publishing to %s: %w", topic, err)
	}

	s.store.Append(msg)
	s.dispatcher.Publish(msg)

	s.logger.Info("message sent",
		"topic", topic,
		"id", msg.ID,
		"sender", msg.Sender,
	)
	return msg, nil
}

// SubscribeToTopic registers a topic filter with the bridge.
func (s *BridgeService) SubscribeToTopic(topic string) error {
	return s.broker.Subscribe(topic)
}

// UnsubscribeFromTopic removes a topic filter from the bridge.
func (s *BridgeService) UnsubscribeFromTopic(topic string) error {
	return s.broker.Unsubscribe(topic)
}

// ClearTopicMessages removes all stored messages for a topic and returns
// the count removed. Messages already delivered to streams are unaffected.
func (s *BridgeService) ClearTopicMessages(topic string) int {
	removed := s.store.Clear(topic)
	s.logger.Info("cleared topic messages", "topic", topic, "removed", removed)
	return removed
}

// ClearAllMessages removes every stored message and returns the count removed.
func (s *BridgeService) ClearAllMessages() int {
	removed := s.store.ClearAll()
	s.logger.Info("cleared all messages", "removed", removed)
	return removed
}

// =============================================================================
// Live subscriptions
// =============================================================================

// SubscribeTopicMessages opens a live stream of messages for one topic.
// The caller must cancel the stream when done.
func (s *BridgeService) SubscribeTopicMessages(topic string) *delivery.Stream {
	return s.dispatcher.Subscribe(topic)
}

// SubscribeAllTopicMessages opens a live stream of messages on all topics.
// The caller must cancel the stream when done.
func (s *BridgeService) SubscribeAllTopicMessages() *delivery.Stream {
	return s.dispatcher.Subscribe("")
}

// StreamCount returns the number of live delivery streams.
func (s *BridgeService) StreamCount() int {
	return s.dispatcher.SubscriberCount()
}
