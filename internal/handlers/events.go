package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/deskline/chatgate/internal/chat"
	"github.com/deskline/chatgate/internal/handlers/dto"
	"github.com/deskline/chatgate/internal/models"
	"github.com/deskline/chatgate/internal/notify"
	ws "github.com/deskline/chatgate/internal/websocket"
)

// Directory описывает выборки из хранилища, которые нужны шлюзу
// помимо движка сообщений
type Directory interface {
	GetTicket(id uuid.UUID) (*models.Ticket, error)
	TicketRecipients(ticketID, exclude uuid.UUID) ([]models.User, error)
	UpdateLastSeen(id uuid.UUID) error
}

// EventDispatcher маршрутизирует входящие события соединения в движок
// и раскладывает результаты по комнатам
type EventDispatcher struct {
	db       Directory
	engine   *chat.Engine
	hub      *ws.Hub
	notifier notify.Notifier
}

func NewEventDispatcher(db Directory, engine *chat.Engine, hub *ws.Hub, notifier notify.Notifier) *EventDispatcher {
	return &EventDispatcher{
		db:       db,
		engine:   engine,
		hub:      hub,
		notifier: notifier,
	}
}

func (d *EventDispatcher) HandleEvent(client *ws.Client, ev *ws.Event) error {
	switch ev.Type {
	case ws.EventJoinTicket:
		return d.handleJoinTicket(client, ev)

	case ws.EventLeaveTicket:
		return d.handleLeaveTicket(client, ev)

	case ws.EventJoinGroup:
		return d.handleJoinGroup(client, ev)

	case ws.EventLeaveGroup:
		return d.handleLeaveGroup(client, ev)

	case ws.EventSendMessage:
		return d.handleSendMessage(client, ev)

	case ws.EventTyping:
		return d.handleTyping(client, ev)

	case ws.EventMarkAsRead:
		return d.handleMarkAsRead(client, ev)

	case ws.EventEditMessage:
		return d.handleEditMessage(client, ev)

	case ws.EventDeleteMessage:
		return d.handleDeleteMessage(client, ev)

	case ws.EventForwardMessage:
		return d.handleForwardMessage(client, ev)

	case ws.EventGetOnlineUsers:
		return d.handleGetOnlineUsers(client, ev)

	default:
		log.Printf("Unknown event type: %s", ev.Type)
		return nil
	}
}

func actorOf(client *ws.Client) chat.Actor {
	return chat.Actor{
		ID:   client.Identity.UserID,
		Role: client.Identity.Role,
	}
}

// fail отправляет типизированную ошибку только инициатору.
// Другие соединения об отказе не узнают.
func (d *EventDispatcher) fail(client *ws.Client, err error) error {
	log.Printf("Rejected event from user %s: %v", client.Identity.UserID, err)

	var appErr *chat.Error
	if errors.As(err, &appErr) {
		client.SendEvent(ws.EventError, ws.ErrorPayload{
			Message: appErr.Message,
			Kind:    string(appErr.Kind),
		})
		return nil
	}
	client.SendError(err.Error())
	return nil
}

// roomOf выбирает комнату по payload: заполнено ровно одно из ticketId/groupId
func roomOf(ticketID, groupID *uuid.UUID) (ws.RoomKey, error) {
	if (ticketID == nil) == (groupID == nil) {
		return "", chat.Invalid("exactly one of ticketId or groupId is required")
	}
	if ticketID != nil {
		return ws.TicketRoom(*ticketID), nil
	}
	return ws.GroupRoom(*groupID), nil
}

func (d *EventDispatcher) handleJoinTicket(client *ws.Client, ev *ws.Event) error {
	var p dto.JoinTicketPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("ticketId is required"))
	}

	ticket, err := d.engine.AuthorizeJoinTicket(actorOf(client), p.TicketID)
	if err != nil {
		return d.fail(client, err)
	}

	key := ws.TicketRoom(p.TicketID)
	d.hub.JoinRoom(client, key)

	// История нужна для восстановления ленты, но вход не должен от нее зависеть
	history, err := d.engine.TicketHistory(actorOf(client), p.TicketID)
	if err != nil {
		log.Printf("Failed to load history for ticket %s: %v", p.TicketID, err)
		history = []chat.MessageView{}
	}

	client.SendEvent(ws.EventJoinedTicket, map[string]interface{}{
		"ticketId":      p.TicketID,
		"subject":       ticket.Subject,
		"messages":      history,
		"onlineUserIds": d.hub.RoomUsers(key),
	})
	return nil
}

func (d *EventDispatcher) handleLeaveTicket(client *ws.Client, ev *ws.Event) error {
	var p dto.JoinTicketPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("ticketId is required"))
	}
	d.hub.LeaveRoom(client, ws.TicketRoom(p.TicketID))
	return nil
}

func (d *EventDispatcher) handleJoinGroup(client *ws.Client, ev *ws.Event) error {
	var p dto.JoinGroupPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("groupId is required"))
	}

	group, err := d.engine.AuthorizeJoinGroup(actorOf(client), p.GroupID)
	if err != nil {
		return d.fail(client, err)
	}

	key := ws.GroupRoom(p.GroupID)
	d.hub.JoinRoom(client, key)

	history, err := d.engine.GroupHistory(p.GroupID)
	if err != nil {
		log.Printf("Failed to load history for group %s: %v", p.GroupID, err)
		history = []chat.MessageView{}
	}

	client.SendEvent(ws.EventJoinedGroup, map[string]interface{}{
		"groupId":       p.GroupID,
		"name":          group.Name,
		"messages":      history,
		"onlineUserIds": d.hub.RoomUsers(key),
	})
	return nil
}

func (d *EventDispatcher) handleLeaveGroup(client *ws.Client, ev *ws.Event) error {
	var p dto.JoinGroupPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("groupId is required"))
	}
	d.hub.LeaveRoom(client, ws.GroupRoom(p.GroupID))
	return nil
}

func (d *EventDispatcher) handleSendMessage(client *ws.Client, ev *ws.Event) error {
	var p dto.SendMessagePayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid send_message payload"))
	}

	view, err := d.engine.CreateMessage(actorOf(client), chat.CreateInput{
		TicketID:     p.TicketID,
		GroupID:      p.GroupID,
		Body:         p.Message,
		Type:         models.MessageType(p.MessageType),
		Mode:         models.MessageMode(p.MessageMode),
		ReplyToID:    p.ReplyToID,
		FileURL:      p.FileURL,
		FileName:     p.FileName,
		FileSize:     p.FileSize,
		FileMimeType: p.FileMimeType,
	})
	if err != nil {
		return d.fail(client, err)
	}

	key, _ := roomOf(view.TicketID, view.GroupID)
	data, err := ws.NewEvent(ws.EventNewMessage, view)
	if err != nil {
		return err
	}
	d.hub.BroadcastRoom(key, data)

	// Побочные эффекты не держат доставку
	if view.TicketID != nil {
		go d.notifyTicket(*view.TicketID, view)
	}
	go d.db.UpdateLastSeen(client.Identity.UserID)

	return nil
}

func (d *EventDispatcher) handleTyping(client *ws.Client, ev *ws.Event) error {
	var p dto.TypingPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid typing payload"))
	}

	key, err := roomOf(p.TicketID, p.GroupID)
	if err != nil {
		return d.fail(client, err)
	}
	if !client.IsInRoom(key) {
		return d.fail(client, chat.Forbidden("you are not attached to this room"))
	}

	data, err := ws.NewEvent(ws.EventUserTyping, map[string]interface{}{
		"room":        string(key),
		"userId":      client.Identity.UserID,
		"displayName": client.Identity.DisplayName,
		"isTyping":    p.IsTyping,
	})
	if err != nil {
		return err
	}
	d.hub.BroadcastRoomExcept(key, data, client.ID)
	return nil
}

func (d *EventDispatcher) handleMarkAsRead(client *ws.Client, ev *ws.Event) error {
	var p dto.MarkAsReadPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid mark_as_read payload"))
	}

	key, err := roomOf(p.TicketID, p.GroupID)
	if err != nil {
		return d.fail(client, err)
	}
	if !client.IsInRoom(key) {
		return d.fail(client, chat.Forbidden("you are not attached to this room"))
	}
	if len(p.MessageIDs) == 0 {
		return d.fail(client, chat.Invalid("messageIds is required"))
	}

	// Best-effort: broadcast уходит независимо от записи отметок
	d.engine.MarkSeen(actorOf(client), p.MessageIDs)

	payload := map[string]interface{}{
		"room":       string(key),
		"userId":     client.Identity.UserID,
		"messageIds": p.MessageIDs,
	}
	if data, err := ws.NewEvent(ws.EventMessageSeen, payload); err == nil {
		d.hub.BroadcastRoom(key, data)
	}
	// Второй broadcast для клиентов, еще не перешедших с messages_read
	if data, err := ws.NewEvent(ws.EventMessagesRead, payload); err == nil {
		d.hub.BroadcastRoom(key, data)
	}
	return nil
}

func (d *EventDispatcher) handleEditMessage(client *ws.Client, ev *ws.Event) error {
	var p dto.EditMessagePayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid edit_message payload"))
	}

	view, err := d.engine.EditMessage(actorOf(client), p.TicketID, p.MessageID, p.Message)
	if err != nil {
		return d.fail(client, err)
	}

	data, err := ws.NewEvent(ws.EventMessageEdited, view)
	if err != nil {
		return err
	}
	d.hub.BroadcastRoom(ws.TicketRoom(p.TicketID), data)
	return nil
}

func (d *EventDispatcher) handleDeleteMessage(client *ws.Client, ev *ws.Event) error {
	var p dto.DeleteMessagePayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid delete_message payload"))
	}

	view, err := d.engine.DeleteMessage(actorOf(client), p.TicketID, p.MessageID)
	if err != nil {
		return d.fail(client, err)
	}

	data, err := ws.NewEvent(ws.EventMessageDeleted, view)
	if err != nil {
		return err
	}
	d.hub.BroadcastRoom(ws.TicketRoom(p.TicketID), data)
	return nil
}

func (d *EventDispatcher) handleForwardMessage(client *ws.Client, ev *ws.Event) error {
	var p dto.ForwardMessagePayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid forward_message payload"))
	}

	view, err := d.engine.ForwardMessage(actorOf(client), p.SourceTicketID, p.TargetTicketID, p.MessageID, models.MessageMode(p.MessageMode))
	if err != nil {
		return d.fail(client, err)
	}

	key := ws.TicketRoom(p.TargetTicketID)
	data, err := ws.NewEvent(ws.EventMessageForwarded, view)
	if err != nil {
		return err
	}
	d.hub.BroadcastRoom(key, data)

	// Инициатор может не быть подключен к целевой комнате,
	// но подтверждение он получает в любом случае
	if !client.IsInRoom(key) {
		client.SendEvent(ws.EventMessageForwarded, view)
	}

	if view.TicketID != nil {
		go d.notifyTicket(*view.TicketID, view)
	}
	return nil
}

func (d *EventDispatcher) handleGetOnlineUsers(client *ws.Client, ev *ws.Event) error {
	var p dto.OnlineUsersPayload
	if err := ws.ParsePayload(ev, &p); err != nil {
		return d.fail(client, chat.Invalid("invalid get_online_users payload"))
	}

	key, err := roomOf(p.TicketID, p.GroupID)
	if err != nil {
		return d.fail(client, err)
	}
	if !client.IsInRoom(key) {
		return d.fail(client, chat.Forbidden("you are not attached to this room"))
	}

	client.SendEvent(ws.EventOnlineUsers, ws.OnlineUsersPayload{
		Room:    string(key),
		UserIDs: d.hub.RoomUsers(key),
	})
	return nil
}

// notifyTicket доводит сообщение до участников тикета за пределами комнаты.
// Подключенным оно уходит в персональный канал, остальным во внешний канал
// уведомлений. Запускается отдельной горутиной, ошибки только логируются.
func (d *EventDispatcher) notifyTicket(ticketID uuid.UUID, view *chat.MessageView) {
	ticket, err := d.db.GetTicket(ticketID)
	if err != nil {
		log.Printf("Notification skipped, ticket %s: %v", ticketID, err)
		return
	}
	recipients, err := d.db.TicketRecipients(ticketID, view.Sender.ID)
	if err != nil {
		log.Printf("Notification skipped, recipients of %s: %v", ticketID, err)
		return
	}
	data, err := ws.NewEvent(ws.EventNewMessage, view)
	if err != nil {
		log.Printf("Notification skipped, envelope for %s: %v", ticketID, err)
		return
	}

	inRoom := make(map[uuid.UUID]bool)
	for _, id := range d.hub.RoomUsers(ws.TicketRoom(ticketID)) {
		inRoom[id] = true
	}
	online := make(map[uuid.UUID]bool)
	for _, id := range d.hub.OnlineUsers() {
		online[id] = true
	}

	ctx := context.Background()
	for _, recipient := range recipients {
		// Внутренняя ветка не уведомляет клиентов
		if view.Mode == models.ModeInternal && recipient.Role == models.RoleClient {
			continue
		}
		// Участники комнаты уже получили broadcast
		if inRoom[recipient.ID] {
			continue
		}
		if online[recipient.ID] {
			d.hub.SendToUser(recipient.ID, data)
			continue
		}
		if err := d.notifier.MessageCreated(ctx, recipient, ticket, view.Sender.DisplayName, view.Body); err != nil {
			log.Printf("Notification failed for %s: %v", recipient.Email, err)
		}
	}
}
