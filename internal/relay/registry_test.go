package relay

import (
	"testing"
)

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_AddIdempotent(t *testing.T) {
	r := NewTopicRegistry()

	if !r.Add("test/messages") {
		t.Error("first Add() = false, want true")
	}
	if r.Add("test/messages") {
		t.Error("second Add() = true, want false")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d after double add, want 1", r.Len())
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewTopicRegistry()
	r.Add("test/messages")

	if !r.Remove("test/messages") {
		t.Error("Remove() = false for present topic, want true")
	}
	if r.Remove("test/messages") {
		t.Error("Remove() = true for absent topic, want false")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewTopicRegistry()
	r.Add("b/two")
	r.Add("a/one")

	snap := r.Snapshot()

	if len(snap) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(snap))
	}
	if snap[0] != "a/one" || snap[1] != "b/two" {
		t.Errorf("Snapshot() = %v, want sorted order", snap)
	}

	// The snapshot is a copy; mutating the registry does not affect it.
	r.Add("c/three")
	if len(snap) != 2 {
		t.Errorf("snapshot changed after registry mutation: %v", snap)
	}
}

func TestRegistry_Matches(t *testing.T) {
	r := NewTopicRegistry()
	r.Add("sensors/+")

	if !r.Matches("sensors/temperature") {
		t.Error("Matches(sensors/temperature) = false, want true via sensors/+")
	}
	if r.Matches("alerts/system") {
		t.Error("Matches(alerts/system) = true, want false")
	}
}

// =============================================================================
// TopicMatches
// =============================================================================

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{name: "exact match", filter: "a/b/c", topic: "a/b/c", want: true},
		{name: "exact mismatch", filter: "a/b/c", topic: "a/b/d", want: false},
		{name: "single-level wildcard", filter: "sensors/+", topic: "sensors/temperature", want: true},
		{name: "single-level too deep", filter: "sensors/+", topic: "sensors/room/temperature", want: false},
		{name: "single-level mid-filter", filter: "a/+/c", topic: "a/b/c", want: true},
		{name: "multi-level wildcard", filter: "sensors/#", topic: "sensors/room/temperature", want: true},
		{name: "multi-level matches parent", filter: "sensors/#", topic: "sensors", want: true},
		{name: "multi-level everything", filter: "#", topic: "any/topic/at/all", want: true},
		{name: "hash not last is invalid", filter: "a/#/c", topic: "a/b/c", want: false},
		{name: "filter longer than topic", filter: "a/b/c", topic: "a/b", want: false},
		{name: "topic longer than filter", filter: "a/b", topic: "a/b/c", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopicMatches(tt.filter, tt.topic); got != tt.want {
				t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}
