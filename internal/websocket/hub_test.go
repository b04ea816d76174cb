package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewEventType(t *testing.T) {
	evt := NewEvent("child_task", "verified", 7, 3)
	if evt.Type != "child_task_verified" {
		t.Errorf("type = %q, want child_task_verified", evt.Type)
	}
	if evt.ID != 7 || evt.ChildID != 3 {
		t.Errorf("ids = %d/%d, want 7/3", evt.ID, evt.ChildID)
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()

	c := NewClient(hub, nil, 1)
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}

	// Double unregister is a no-op, not a panic on a closed channel.
	hub.Unregister(c)
}

func TestHubBroadcastScopedToFamily(t *testing.T) {
	hub := newTestHub()

	mine := NewClient(hub, nil, 1)
	sibling := NewClient(hub, nil, 1)
	other := NewClient(hub, nil, 2)
	hub.Register(mine)
	hub.Register(sibling)
	hub.Register(other)

	hub.Broadcast(1, NewEvent("redemption", "requested", 5, 3))

	for _, c := range []*Client{mine, sibling} {
		select {
		case data := <-c.send:
			var evt Event
			if err := json.Unmarshal(data, &evt); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if evt.Type != "redemption_requested" {
				t.Errorf("type = %q, want redemption_requested", evt.Type)
			}
		default:
			t.Error("expected event for family member")
		}
	}

	select {
	case <-other.send:
		t.Error("event leaked to another family")
	default:
	}
}

func TestHubBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()

	c := NewClient(hub, nil, 1)
	hub.Register(c)

	// Fill the buffer past capacity; extra events are dropped, never block.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Broadcast(1, NewEvent("child", "updated", int64(i), 0))
	}

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}
