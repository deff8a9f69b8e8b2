package dto

import (
	"github.com/google/uuid"
)

// Payload входящих событий. Поля идентичности (кто отправил) здесь
// отсутствуют намеренно: авторитетна только привязка соединения.

type JoinTicketPayload struct {
	TicketID uuid.UUID `json:"ticketId"`
}

type JoinGroupPayload struct {
	GroupID uuid.UUID `json:"groupId"`
}

type SendMessagePayload struct {
	TicketID     *uuid.UUID `json:"ticketId,omitempty"`
	GroupID      *uuid.UUID `json:"groupId,omitempty"`
	Message      string     `json:"message"`
	MessageType  string     `json:"messageType,omitempty"`
	MessageMode  string     `json:"messageMode,omitempty"`
	ReplyToID    *uuid.UUID `json:"replyToId,omitempty"`
	FileURL      string     `json:"fileUrl,omitempty"`
	FileName     string     `json:"fileName,omitempty"`
	FileSize     int64      `json:"fileSize,omitempty"`
	FileMimeType string     `json:"fileMimeType,omitempty"`
}

type TypingPayload struct {
	TicketID *uuid.UUID `json:"ticketId,omitempty"`
	GroupID  *uuid.UUID `json:"groupId,omitempty"`
	IsTyping bool       `json:"isTyping"`
}

type MarkAsReadPayload struct {
	TicketID   *uuid.UUID  `json:"ticketId,omitempty"`
	GroupID    *uuid.UUID  `json:"groupId,omitempty"`
	MessageIDs []uuid.UUID `json:"messageIds"`
}

type EditMessagePayload struct {
	TicketID  uuid.UUID `json:"ticketId"`
	MessageID uuid.UUID `json:"messageId"`
	Message   string    `json:"message"`
}

type DeleteMessagePayload struct {
	TicketID  uuid.UUID `json:"ticketId"`
	MessageID uuid.UUID `json:"messageId"`
}

type ForwardMessagePayload struct {
	SourceTicketID uuid.UUID `json:"sourceTicketId"`
	TargetTicketID uuid.UUID `json:"targetTicketId"`
	MessageID      uuid.UUID `json:"messageId"`
	MessageMode    string    `json:"messageMode,omitempty"`
}

type OnlineUsersPayload struct {
	TicketID *uuid.UUID `json:"ticketId,omitempty"`
	GroupID  *uuid.UUID `json:"groupId,omitempty"`
}
