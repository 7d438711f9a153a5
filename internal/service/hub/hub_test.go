package hub

import (
	"encoding/json"
	"errors"
	"testing"

	"maarga/internal/domain/event"
)

// fakeConn records everything delivered to it and can be flipped into a
// failing state to simulate a dead peer.
type fakeConn struct {
	id       string
	received [][]byte
	fail     bool
}

func (c *fakeConn) ID() string {
	return c.id
}

func (c *fakeConn) Send(data []byte) error {
	if c.fail {
		return errors.New("connection closed")
	}
	c.received = append(c.received, data)
	return nil
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(c.received))
	for _, data := range c.received {
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("received undecodable event: %v", err)
		}
		out = append(out, ev.Type)
	}
	return out
}

func TestPublishFansOutInOrder(t *testing.T) {
	h := New(nil)
	a := &fakeConn{id: "conn-a"}
	b := &fakeConn{id: "conn-b"}
	h.Subscribe("RIDE42", a)
	h.Subscribe("RIDE42", b)

	h.Publish("RIDE42", event.New(event.TypeMemberJoined, "RIDE42", nil), nil)
	h.Publish("RIDE42", event.New(event.TypeLocationUpdate, "RIDE42", nil), nil)

	for _, c := range []*fakeConn{a, b} {
		got := c.types(t)
		if len(got) != 2 || got[0] != string(event.TypeMemberJoined) || got[1] != string(event.TypeLocationUpdate) {
			t.Errorf("%s received %v, want [member_joined location_update]", c.id, got)
		}
	}
}

func TestPublishExcludesSender(t *testing.T) {
	h := New(nil)
	sender := &fakeConn{id: "conn-sender"}
	other := &fakeConn{id: "conn-other"}
	h.Subscribe("RIDE42", sender)
	h.Subscribe("RIDE42", other)

	h.Publish("RIDE42", event.New(event.TypeLocationUpdate, "RIDE42", nil), sender)

	if len(sender.received) != 0 {
		t.Errorf("excluded sender received %d events, want 0", len(sender.received))
	}
	if len(other.received) != 1 {
		t.Errorf("other subscriber received %d events, want 1", len(other.received))
	}
}

func TestPublishRoomIsolation(t *testing.T) {
	h := New(nil)
	a := &fakeConn{id: "conn-a"}
	b := &fakeConn{id: "conn-b"}
	h.Subscribe("RIDE42", a)
	h.Subscribe("OTHER1", b)

	h.Publish("RIDE42", event.New(event.TypeNotification, "RIDE42", nil), nil)

	if len(a.received) != 1 {
		t.Errorf("RIDE42 subscriber received %d events, want 1", len(a.received))
	}
	if len(b.received) != 0 {
		t.Errorf("OTHER1 subscriber received %d events, want 0", len(b.received))
	}
}

func TestPublishDropsFailedSubscriber(t *testing.T) {
	h := New(nil)
	healthy := &fakeConn{id: "conn-healthy"}
	dead := &fakeConn{id: "conn-dead", fail: true}
	h.Subscribe("RIDE42", healthy)
	h.Subscribe("RIDE42", dead)

	h.Publish("RIDE42", event.New(event.TypeMemberJoined, "RIDE42", nil), nil)

	// The healthy subscriber is unaffected by the dead one.
	if len(healthy.received) != 1 {
		t.Errorf("healthy subscriber received %d events, want 1", len(healthy.received))
	}
	if n := h.SubscriberCount("RIDE42"); n != 1 {
		t.Errorf("SubscriberCount = %d after failed delivery, want 1", n)
	}

	// The dead connection no longer receives anything.
	dead.fail = false
	h.Publish("RIDE42", event.New(event.TypeMemberLeft, "RIDE42", nil), nil)
	if len(dead.received) != 0 {
		t.Errorf("dropped subscriber received %d events, want 0", len(dead.received))
	}
}

func TestPublishEmptyRoom(t *testing.T) {
	h := New(nil)
	// Publishing to a room nobody subscribes to must not panic.
	h.Publish("EMPTY1", event.New(event.TypeNotification, "EMPTY1", nil), nil)
}

func TestUnsubscribe(t *testing.T) {
	h := New(nil)
	c := &fakeConn{id: "conn-a"}
	h.Subscribe("RIDE42", c)
	if n := h.SubscriberCount("RIDE42"); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	h.Unsubscribe("RIDE42", c)
	if n := h.SubscriberCount("RIDE42"); n != 0 {
		t.Errorf("SubscriberCount = %d after Unsubscribe, want 0", n)
	}

	// Unknown room and repeated unsubscribe are no-ops.
	h.Unsubscribe("RIDE42", c)
	h.Unsubscribe("NOSUCH", c)
}
