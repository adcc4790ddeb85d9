package message

import (
	"testing"
	"time"
)

// =============================================================================
// Structured decode
// =============================================================================

func TestDecode_StructuredRoundTrip(t *testing.T) {
	original := New("test/messages", "hello", "api_client")

	payload, err := EncodeWire(original)
	if err != nil {
		t.Fatalf("EncodeWire() error = %v", err)
	}

	decoded := Decode("test/messages", payload)

	if decoded.Kind != DecodeStructured {
		t.Fatalf("Decode() kind = %v, want DecodeStructured", decoded.Kind)
	}
	if decoded.Message.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.Message.ID, original.ID)
	}
	if decoded.Message.Content != original.Content {
		t.Errorf("Content = %q, want %q", decoded.Message.Content, original.Content)
	}
	if decoded.Message.Sender != original.Sender {
		t.Errorf("Sender = %q, want %q", decoded.Message.Sender, original.Sender)
	}
	if !decoded.Message.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Message.Timestamp, original.Timestamp)
	}
	if decoded.Message.Topic != "test/messages" {
		t.Errorf("Topic = %q, want %q", decoded.Message.Topic, "test/messages")
	}
}

func TestDecode_StructuredPreservesTopic(t *testing.T) {
	// The topic comes from the broker delivery, not the payload.
	msg := New("original/topic", "content", "someone")
	payload, err := EncodeWire(msg)
	if err != nil {
		t.Fatalf("EncodeWire() error = %v", err)
	}

	decoded := Decode("delivered/topic", payload)
	if decoded.Message.Topic != "delivered/topic" {
		t.Errorf("Topic = %q, want delivery topic %q", decoded.Message.Topic, "delivered/topic")
	}
}

// =============================================================================
// Opaque decode
// =============================================================================

func TestDecode_PlainText(t *testing.T) {
	before := time.Now()
	decoded := Decode("sensors/temperature", []byte("ping"))
	after := time.Now()

	if decoded.Kind != DecodeOpaque {
		t.Fatalf("Decode() kind = %v, want DecodeOpaque", decoded.Kind)
	}
	if decoded.Message.Content != "ping" {
		t.Errorf("Content = %q, want %q", decoded.Message.Content, "ping")
	}
	if decoded.Message.Sender != SenderExternal {
		t.Errorf("Sender = %q, want %q", decoded.Message.Sender, SenderExternal)
	}
	if decoded.Message.ID == "" {
		t.Error("expected generated id, got empty string")
	}
	if decoded.Message.Timestamp.Before(before) || decoded.Message.Timestamp.After(after) {
		t.Errorf("Timestamp = %v, want between %v and %v", decoded.Message.Timestamp, before, after)
	}
}

func TestDecode_JSONWithoutContract(t *testing.T) {
	// Valid JSON, but not the wire shape: treated as opaque text.
	payload := []byte(`{"temperature": 21.5, "unit": "C"}`)

	decoded := Decode("sensors/temperature", payload)

	if decoded.Kind != DecodeOpaque {
		t.Fatalf("Decode() kind = %v, want DecodeOpaque", decoded.Kind)
	}
	if decoded.Message.Content != string(payload) {
		t.Errorf("Content = %q, want raw payload", decoded.Message.Content)
	}
	if decoded.Message.Sender != SenderExternal {
		t.Errorf("Sender = %q, want %q", decoded.Message.Sender, SenderExternal)
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	decoded := Decode("test/messages", []byte(`{"content": "broken`))

	if decoded.Kind != DecodeOpaque {
		t.Errorf("Decode() kind = %v, want DecodeOpaque", decoded.Kind)
	}
}

func TestDecode_BadTimestamp(t *testing.T) {
	payload := []byte(`{"content":"x","sender":"y","id":"z","timestamp":"not-a-time"}`)

	decoded := Decode("test/messages", payload)

	if decoded.Kind != DecodeOpaque {
		t.Errorf("Decode() kind = %v, want DecodeOpaque for bad timestamp", decoded.Kind)
	}
}

func TestDecode_MissingKey(t *testing.T) {
	// sender missing: must take the opaque path, not default the field.
	payload := []byte(`{"content":"x","id":"z","timestamp":"2026-01-02T15:04:05Z"}`)

	decoded := Decode("test/messages", payload)

	if decoded.Kind != DecodeOpaque {
		t.Errorf("Decode() kind = %v, want DecodeOpaque for missing sender", decoded.Kind)
	}
}

// =============================================================================
// Constructors
// =============================================================================

func TestNew_DefaultsSender(t *testing.T) {
	msg := New("test/messages", "hello", "")

	if msg.Sender != SenderAPI {
		t.Errorf("Sender = %q, want %q", msg.Sender, SenderAPI)
	}
	if msg.ID == "" {
		t.Error("expected generated id, got empty string")
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New("t", "a", "")
	b := New("t", "b", "")

	if a.ID == b.ID {
		t.Errorf("expected distinct ids, both = %q", a.ID)
	}
}
