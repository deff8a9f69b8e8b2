package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/deskline/chatgate/internal/chat"
	"github.com/deskline/chatgate/internal/handlers/dto"
	"github.com/deskline/chatgate/internal/models"
	ws "github.com/deskline/chatgate/internal/websocket"
)

type fakeDirectory struct {
	ticket     *models.Ticket
	recipients []models.User
}

func (f *fakeDirectory) GetTicket(id uuid.UUID) (*models.Ticket, error) {
	if f.ticket == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.ticket, nil
}

func (f *fakeDirectory) TicketRecipients(ticketID, exclude uuid.UUID) ([]models.User, error) {
	out := make([]models.User, 0, len(f.recipients))
	for _, u := range f.recipients {
		if u.ID != exclude {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) UpdateLastSeen(id uuid.UUID) error { return nil }

type fakeNotifier struct {
	notified []string
}

func (n *fakeNotifier) MessageCreated(_ context.Context, recipient models.User, _ *models.Ticket, _, _ string) error {
	n.notified = append(n.notified, recipient.Email)
	return nil
}

type stubStore struct{}

func (stubStore) GetUser(uuid.UUID) (*models.User, error)     { return nil, gorm.ErrRecordNotFound }
func (stubStore) GetTicket(uuid.UUID) (*models.Ticket, error) { return nil, gorm.ErrRecordNotFound }
func (stubStore) GetGroup(uuid.UUID) (*models.Group, error)   { return nil, gorm.ErrRecordNotFound }
func (stubStore) TicketMembership(uuid.UUID, uuid.UUID) (*models.TicketMember, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubStore) IsGroupMember(uuid.UUID, uuid.UUID) (bool, error) { return false, nil }
func (stubStore) GetMessage(uuid.UUID) (*models.Message, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubStore) SaveMessage(*models.Message) error                { return nil }
func (stubStore) UpdateMessage(*models.Message) error              { return nil }
func (stubStore) AppendHistory(*models.MessageHistory) error       { return nil }
func (stubStore) UpsertSeen(uuid.UUID, uuid.UUID, time.Time) error { return nil }
func (stubStore) SeenBy(uuid.UUID) ([]uuid.UUID, error)            { return nil, nil }
func (stubStore) GroupMessages(uuid.UUID, int) ([]models.Message, error) {
	return nil, nil
}
func (stubStore) TicketMessages(uuid.UUID, int, bool) ([]models.Message, error) {
	return nil, nil
}

func testUser(role models.Role, name string) models.User {
	return models.User{ID: uuid.New(), Email: name + "@example.com", DisplayName: name, Role: role}
}

func newConn(hub *ws.Hub, u models.User) *ws.Client {
	return ws.NewClient(hub, nil, ws.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	})
}

func recvEvent(t *testing.T, c *ws.Client) ws.Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev ws.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected an event on the connection")
		return ws.Event{}
	}
}

func drainEvents(t *testing.T, c *ws.Client) []ws.EventType {
	t.Helper()
	var types []ws.EventType
	for {
		select {
		case data := <-c.Send:
			var ev ws.Event
			require.NoError(t, json.Unmarshal(data, &ev))
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestNewMessageReachesMembersOutsideRoom(t *testing.T) {
	ticketID := uuid.New()
	sender := testUser(models.RoleEmployee, "sender")
	inRoom := testUser(models.RoleEmployee, "inroom")
	offRoom := testUser(models.RoleEmployee, "offroom")
	offline := testUser(models.RoleEmployee, "offline")

	dir := &fakeDirectory{
		ticket:     &models.Ticket{ID: ticketID, Subject: "Broken build"},
		recipients: []models.User{inRoom, offRoom, offline},
	}
	notifier := &fakeNotifier{}
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	inRoomClient := newConn(hub, inRoom)
	offRoomClient := newConn(hub, offRoom)
	hub.Register(inRoomClient)
	hub.Register(offRoomClient)
	// Третья регистрация гарантирует, что первые две уже обработаны
	hub.Register(newConn(hub, sender))
	hub.JoinRoom(inRoomClient, ws.TicketRoom(ticketID))

	d := NewEventDispatcher(dir, chat.NewEngine(stubStore{}), hub, notifier)
	view := &chat.MessageView{
		ID:       uuid.New(),
		TicketID: &ticketID,
		Sender:   chat.UserInfo{ID: sender.ID, DisplayName: sender.DisplayName},
		Body:     "hello",
		Mode:     models.ModeClient,
	}
	d.notifyTicket(ticketID, view)

	// Подключенный вне комнаты получает событие в персональный канал
	ev := recvEvent(t, offRoomClient)
	assert.Equal(t, ws.EventNewMessage, ev.Type)

	// Участник комнаты дубль не получает: broadcast уже был
	assert.Empty(t, drainEvents(t, inRoomClient))

	// Внешний канал только для отключенных
	assert.Equal(t, []string{offline.Email}, notifier.notified)
}

func TestInternalMessageSkipsClientRecipients(t *testing.T) {
	ticketID := uuid.New()
	sender := testUser(models.RoleEmployee, "sender")
	customer := testUser(models.RoleClient, "customer")
	colleague := testUser(models.RoleEmployee, "colleague")

	dir := &fakeDirectory{
		ticket:     &models.Ticket{ID: ticketID, Subject: "Broken build"},
		recipients: []models.User{customer, colleague},
	}
	notifier := &fakeNotifier{}
	hub := ws.NewHub()

	d := NewEventDispatcher(dir, chat.NewEngine(stubStore{}), hub, notifier)
	view := &chat.MessageView{
		ID:       uuid.New(),
		TicketID: &ticketID,
		Sender:   chat.UserInfo{ID: sender.ID, DisplayName: sender.DisplayName},
		Body:     "internal note",
		Mode:     models.ModeInternal,
	}
	d.notifyTicket(ticketID, view)

	assert.Equal(t, []string{colleague.Email}, notifier.notified)
}

func TestMarkAsReadEmitsSeenAndLegacyAlias(t *testing.T) {
	ticketID := uuid.New()
	reader := testUser(models.RoleClient, "reader")
	peer := testUser(models.RoleEmployee, "peer")

	hub := ws.NewHub()
	readerClient := newConn(hub, reader)
	peerClient := newConn(hub, peer)
	hub.JoinRoom(readerClient, ws.TicketRoom(ticketID))
	hub.JoinRoom(peerClient, ws.TicketRoom(ticketID))
	drainEvents(t, readerClient)
	drainEvents(t, peerClient)

	d := NewEventDispatcher(&fakeDirectory{}, chat.NewEngine(stubStore{}), hub, &fakeNotifier{})

	payload, err := json.Marshal(dto.MarkAsReadPayload{
		TicketID:   &ticketID,
		MessageIDs: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	err = d.HandleEvent(readerClient, &ws.Event{Type: ws.EventMarkAsRead, Data: payload})
	require.NoError(t, err)

	assert.Equal(t,
		[]ws.EventType{ws.EventMessageSeen, ws.EventMessagesRead},
		drainEvents(t, peerClient))
}
