package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskline/chatgate/internal/models"
)

func newTestClient(h *Hub, userID uuid.UUID, name string) *Client {
	return &Client{
		ID: uuid.New(),
		Identity: Identity{
			UserID:      userID,
			DisplayName: name,
			Role:        models.RoleEmployee,
		},
		Send:  make(chan []byte, 16),
		Rooms: make(map[RoomKey]bool),
		Hub:   h,
	}
}

func drain(t *testing.T, c *Client) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case data := <-c.Send:
			var ev Event
			require.NoError(t, json.Unmarshal(data, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	h := NewHub()
	room := TicketRoom(uuid.New())

	a := newTestClient(h, uuid.New(), "a")
	b := newTestClient(h, uuid.New(), "b")
	outsider := newTestClient(h, uuid.New(), "outsider")
	for _, c := range []*Client{a, b, outsider} {
		h.registerClient(c)
	}

	h.JoinRoom(a, room)
	h.JoinRoom(b, room)
	drain(t, a)
	drain(t, b)

	data, err := NewEvent(EventNewMessage, map[string]string{"body": "hi"})
	require.NoError(t, err)
	h.BroadcastRoom(room, data)

	assert.Equal(t, []EventType{EventNewMessage}, eventTypes(drain(t, a)))
	assert.Equal(t, []EventType{EventNewMessage}, eventTypes(drain(t, b)))
	assert.Empty(t, drain(t, outsider))
}

func TestJoinRoomNotifiesOthersOnly(t *testing.T) {
	h := NewHub()
	room := TicketRoom(uuid.New())

	a := newTestClient(h, uuid.New(), "a")
	b := newTestClient(h, uuid.New(), "b")
	h.registerClient(a)
	h.registerClient(b)

	h.JoinRoom(a, room)
	assert.Empty(t, drain(t, a), "first joiner has nobody to hear from")

	h.JoinRoom(b, room)
	events := drain(t, a)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserJoined, events[0].Type)

	var p PresencePayload
	require.NoError(t, json.Unmarshal(events[0].Data, &p))
	assert.Equal(t, b.Identity.UserID, p.UserID)
	assert.Equal(t, string(room), p.Room)

	assert.Empty(t, drain(t, b), "joiner does not receive their own user_joined")
}

func TestLeaveRoomNotifiesRest(t *testing.T) {
	h := NewHub()
	room := GroupRoom(uuid.New())

	a := newTestClient(h, uuid.New(), "a")
	b := newTestClient(h, uuid.New(), "b")
	h.registerClient(a)
	h.registerClient(b)
	h.JoinRoom(a, room)
	h.JoinRoom(b, room)
	drain(t, a)
	drain(t, b)

	h.LeaveRoom(b, room)

	events := drain(t, a)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserLeft, events[0].Type)
	assert.False(t, b.IsInRoom(room))
}

func TestDisconnectEmitsUserOffline(t *testing.T) {
	h := NewHub()
	room1 := TicketRoom(uuid.New())
	room2 := TicketRoom(uuid.New())

	a := newTestClient(h, uuid.New(), "a")
	b := newTestClient(h, uuid.New(), "b")
	h.registerClient(a)
	h.registerClient(b)
	h.JoinRoom(a, room1)
	h.JoinRoom(a, room2)
	h.JoinRoom(b, room1)
	h.JoinRoom(b, room2)
	drain(t, a)
	drain(t, b)

	h.unregisterClient(b)

	types := eventTypes(drain(t, a))
	assert.Equal(t, []EventType{EventUserOffline, EventUserOffline}, types)

	assert.Empty(t, h.RoomUsers(room1))
	assert.NotContains(t, h.clients, b.ID)

	// Повторная отмена регистрации безопасна
	h.unregisterClient(b)
}

func TestRoomUsersDistinct(t *testing.T) {
	h := NewHub()
	room := TicketRoom(uuid.New())
	userID := uuid.New()

	first := newTestClient(h, userID, "two-tabs")
	second := newTestClient(h, userID, "two-tabs")
	h.registerClient(first)
	h.registerClient(second)
	h.JoinRoom(first, room)
	h.JoinRoom(second, room)

	users := h.RoomUsers(room)
	require.Len(t, users, 1)
	assert.Equal(t, userID, users[0])
}

func TestSendToUserHitsAllConnections(t *testing.T) {
	h := NewHub()
	userID := uuid.New()

	first := newTestClient(h, userID, "phone")
	second := newTestClient(h, userID, "laptop")
	other := newTestClient(h, uuid.New(), "other")
	h.registerClient(first)
	h.registerClient(second)
	h.registerClient(other)

	data, err := NewEvent(EventMessageSeen, map[string]string{"ok": "1"})
	require.NoError(t, err)
	h.SendToUser(userID, data)

	assert.Len(t, drain(t, first), 1)
	assert.Len(t, drain(t, second), 1)
	assert.Empty(t, drain(t, other))
}

type captureRelay struct {
	published chan struct {
		room    string
		payload []byte
	}
}

func (r *captureRelay) Publish(room string, payload []byte) error {
	r.published <- struct {
		room    string
		payload []byte
	}{room, payload}
	return nil
}

func TestBroadcastPublishesToRelay(t *testing.T) {
	h := NewHub()
	relay := &captureRelay{published: make(chan struct {
		room    string
		payload []byte
	}, 1)}
	h.SetRelay(relay)

	room := TicketRoom(uuid.New())
	a := newTestClient(h, uuid.New(), "a")
	h.registerClient(a)
	h.JoinRoom(a, room)

	data, err := NewEvent(EventNewMessage, map[string]string{"body": "hi"})
	require.NoError(t, err)
	h.BroadcastRoom(room, data)

	select {
	case got := <-relay.published:
		assert.Equal(t, string(room), got.room)
		assert.Equal(t, data, got.payload)
	case <-time.After(time.Second):
		t.Fatal("relay publish not observed")
	}
}

func TestDeliverLocalSkipsRelay(t *testing.T) {
	h := NewHub()
	relay := &captureRelay{published: make(chan struct {
		room    string
		payload []byte
	}, 1)}
	h.SetRelay(relay)

	room := GroupRoom(uuid.New())
	a := newTestClient(h, uuid.New(), "a")
	h.registerClient(a)
	h.JoinRoom(a, room)

	data, err := NewEvent(EventNewMessage, map[string]string{"body": "remote"})
	require.NoError(t, err)
	h.DeliverLocal(string(room), data)

	assert.Len(t, drain(t, a), 1)
	select {
	case <-relay.published:
		t.Fatal("remote events must not be re-published")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRepeatedJoinDoesNotRebroadcastPresence(t *testing.T) {
	h := NewHub()
	room := TicketRoom(uuid.New())

	a := newTestClient(h, uuid.New(), "a")
	b := newTestClient(h, uuid.New(), "b")
	h.registerClient(a)
	h.registerClient(b)
	h.JoinRoom(a, room)
	h.JoinRoom(b, room)
	drain(t, a)
	drain(t, b)

	h.JoinRoom(b, room)

	assert.Empty(t, drain(t, a))
	assert.True(t, b.IsInRoom(room))
}

func TestUnregisterAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, uuid.New(), "a")
	h.registerClient(c)
	h.Stop()

	done := make(chan struct{})
	go func() {
		h.Unregister(c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unregister blocked after Stop")
	}
}
