package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType определяет типы событий на соединении
type EventType string

const (
	// Входящие события
	EventJoinTicket     EventType = "join_ticket"
	EventLeaveTicket    EventType = "leave_ticket"
	EventJoinGroup      EventType = "join_group"
	EventLeaveGroup     EventType = "leave_group"
	EventSendMessage    EventType = "send_message"
	EventTyping         EventType = "typing"
	EventMarkAsRead     EventType = "mark_as_read"
	EventEditMessage    EventType = "edit_message"
	EventDeleteMessage  EventType = "delete_message"
	EventForwardMessage EventType = "forward_message"
	EventGetOnlineUsers EventType = "get_online_users"

	// Исходящие события
	EventJoinedTicket     EventType = "joined_ticket"
	EventJoinedGroup      EventType = "joined_group"
	EventUserJoined       EventType = "user_joined"
	EventUserLeft         EventType = "user_left"
	EventUserOffline      EventType = "user_offline"
	EventNewMessage       EventType = "new_message"
	EventMessageEdited    EventType = "message_edited"
	EventMessageDeleted   EventType = "message_deleted"
	EventMessageForwarded EventType = "message_forwarded"
	EventMessageSeen      EventType = "message_seen"
	EventMessagesRead     EventType = "messages_read" // устаревший алиас message_seen
	EventUserTyping       EventType = "user_typing"
	EventOnlineUsers      EventType = "online_users"
	EventError            EventType = "error"

	// Служебные
	EventPing EventType = "ping"
	EventPong EventType = "pong"
)

type Event struct {
	Type      EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent собирает исходящий конверт события
func NewEvent(t EventType, data interface{}) ([]byte, error) {
	ev := Event{
		Type:      t,
		Timestamp: time.Now(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		ev.Data = raw
	}
	return json.Marshal(ev)
}

// RoomKey задает строковый идентификатор комнаты в реестре: "ticket:<id>" или "group:<id>"
type RoomKey string

func TicketRoom(id uuid.UUID) RoomKey { return RoomKey("ticket:" + id.String()) }
func GroupRoom(id uuid.UUID) RoomKey  { return RoomKey("group:" + id.String()) }

type PresencePayload struct {
	Room        string    `json:"room"`
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
}

type OnlineUsersPayload struct {
	Room    string      `json:"room"`
	UserIDs []uuid.UUID `json:"userIds"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}
