package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender markers identifying a message's origin.
const (
	// SenderAPI marks messages created by a local send mutation.
	SenderAPI = "api_client"

	// SenderExternal marks messages synthesized from payloads that other
	// producers published directly to the broker.
	SenderExternal = "external_client"
)

// Message is one observed or sent broker message.
//
// A Message is immutable after creation: it is built once, either from a
// local send or from an inbound broker payload, and never updated. The
// store owns appended messages; streams pass them by value.
type Message struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender,omitempty"`
}

// New creates a Message with a generated id and the current time.
//
// An empty sender defaults to the local client marker.
func New(topic, content, sender string) Message {
	if sender == "" {
		sender = SenderAPI
	}
	return Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Content:   content,
		Timestamp: time.Now(),
		Sender:    sender,
	}
}

// wireMessage is the JSON object the bridge publishes to the broker.
// The four keys are the structured-payload contract: a payload carrying
// all of them round-trips through Decode with identity preserved.
type wireMessage struct {
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// EncodeWire serializes a Message into the broker payload format.
func EncodeWire(msg Message) ([]byte, error) {
	wire := wireMessage{
		Content:   msg.Content,
		Sender:    msg.Sender,
		ID:        msg.ID,
		Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding wire message: %w", err)
	}
	return data, nil
}
