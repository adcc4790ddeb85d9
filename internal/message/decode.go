package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DecodeKind tags the outcome of a payload decode.
type DecodeKind int

const (
	// DecodeStructured means the payload carried the full wire contract
	// and the original id, timestamp, and sender were preserved.
	DecodeStructured DecodeKind = iota

	// DecodeOpaque means the payload was treated as plain text from an
	// external producer and a fresh Message was synthesized around it.
	DecodeOpaque
)

// Decoded is the tagged result of decoding an inbound payload.
type Decoded struct {
	Message Message
	Kind    DecodeKind
}

// Decode turns an inbound broker payload into a Message.
//
// It is a two-stage decode that never fails:
//
//  1. Structured: the payload is a JSON object carrying all of the keys
//     content, sender, id, timestamp (timestamp in RFC 3339 form). The
//     Message is reconstructed preserving those fields; this is how the
//     bridge's own publishes round-trip through the broker.
//  2. Opaque: anything else (plain text, malformed JSON, JSON of another
//     shape). A fresh Message is synthesized: new id, current time,
//     external sender marker, raw payload text as content.
func Decode(topic string, payload []byte) Decoded {
	if msg, ok := decodeStructured(topic, payload); ok {
		return Decoded{Message: msg, Kind: DecodeStructured}
	}

	return Decoded{
		Message: Message{
			ID:        uuid.NewString(),
			Topic:     topic,
			Content:   string(payload),
			Timestamp: time.Now(),
			Sender:    SenderExternal,
		},
		Kind: DecodeOpaque,
	}
}

// decodeStructured attempts the strict wire-contract decode.
func decodeStructured(topic string, payload []byte) (Message, bool) {
	// Decode into a generic map first so key presence can be checked;
	// json.Unmarshal into a struct would silently default missing keys.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Message{}, false
	}

	for _, key := range []string{"content", "sender", "id", "timestamp"} {
		if _, ok := raw[key]; !ok {
			return Message{}, false
		}
	}

	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Message{}, false
	}
	if wire.ID == "" {
		return Message{}, false
	}

	ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
	if err != nil {
		return Message{}, false
	}

	return Message{
		ID:        wire.ID,
		Topic:     topic,
		Content:   wire.Content,
		Timestamp: ts,
		Sender:    wire.Sender,
	}, true
}
