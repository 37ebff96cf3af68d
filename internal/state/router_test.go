package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

func decodeAnyEvent(t *testing.T, op string, payload map[string]any) domain.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	ev, err := domain.DecodeEvent(domain.Envelope{Op: op, Data: data})
	if err != nil {
		t.Fatalf("DecodeEvent %s: %v", op, err)
	}
	return ev
}

func TestRouteConnectionEventsReachSession(t *testing.T) {
	s := newTestSession(t, nil, nil)
	r := NewRouter(s)

	r.Route(decodeAnyEvent(t, domain.OpConnected, map[string]any{
		"created_at":    t0,
		"user":          domain.User{ID: "me"},
		"connection_id": "conn-9",
	}))
	if got, _ := s.Connected.Value(); !got || s.ConnectionID() != "conn-9" {
		t.Fatalf("connected = %v, connection id = %q", got, s.ConnectionID())
	}

	r.Route(domain.NewLocalDisconnectedEvent("link down", time.Now()))
	if got, _ := s.Connected.Value(); got {
		t.Error("disconnect should publish false")
	}
}

func TestRouteCreatesChannelLazily(t *testing.T) {
	s := newTestSession(t, nil, nil)
	r := NewRouter(s)

	msg := domain.Message{ID: "m1", User: domain.User{ID: "other"}, Text: "routed", CreatedAt: t0}
	r.Route(decodeChannelEvent(t, domain.OpMessageNew, map[string]any{
		"cid":        "messaging:routed",
		"created_at": t0,
		"user":       msg.User,
		"message":    msg,
	}))

	ch, err := s.Channel("messaging:routed")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	snap, _ := ch.Messages.Value()
	if len(snap) != 1 || snap[0].ID != "m1" {
		t.Errorf("messages = %+v, want the routed event applied", snap)
	}
}

func TestRouteSerializesEventsPerChannelInOrder(t *testing.T) {
	s := newTestSession(t, nil, nil)
	r := NewRouter(s)

	created := domain.Message{ID: "m1", User: domain.User{ID: "other"}, Text: "v1", CreatedAt: t0}
	edited := created
	edited.Text = "v2"
	edited.UpdatedAt = t0.Add(time.Minute)

	r.Route(newMessageEvent(t, created, t0, 0))
	r.Route(updatedMessageEvent(t, edited, t0.Add(time.Minute)))

	ch := testChannel(t, s)
	snap, _ := ch.Messages.Value()
	if len(snap) != 1 || snap[0].Text != "v2" {
		t.Errorf("messages = %+v", snap)
	}
}

func TestRouteDropsEventWithInvalidChannelScope(t *testing.T) {
	s := newTestSession(t, nil, nil)
	r := NewRouter(s)

	// The decoder rejects a bad cid at the transport boundary; the router
	// guard covers events constructed elsewhere. An event built in code with
	// its scope left zero exercises it.
	r.Route(&domain.NewMessageEvent{
		Message: domain.Message{ID: "m1", User: domain.User{ID: "other"}, CreatedAt: t0},
	})

	s.mu.Lock()
	registered := len(s.channels)
	s.mu.Unlock()
	if registered != 0 {
		t.Errorf("channels = %d, want the unscoped event dropped", registered)
	}
}

func TestRouteNilEventIsNoOp(t *testing.T) {
	s := newTestSession(t, nil, nil)
	r := NewRouter(s)

	r.Route(nil)

	s.mu.Lock()
	registered := len(s.channels)
	s.mu.Unlock()
	if registered != 0 {
		t.Errorf("channels = %d after nil event", registered)
	}
}
