package models

import (
	"github.com/google/uuid"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

// MessageMode задает видимость сообщения внутри тикета.
// Для групповых комнат режим не используется.
type MessageMode string

const (
	ModeClient   MessageMode = "client"
	ModeInternal MessageMode = "internal"
)

// Message живет либо в комнате тикета, либо в группе: заполнено ровно одно из
// полей TicketID/GroupID. Удаление мягкое, строка остается, тело заменяется
// заглушкой, история хранится отдельно.
type Message struct {
	ID                    uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TicketID              *uuid.UUID  `gorm:"type:uuid;index"`
	GroupID               *uuid.UUID  `gorm:"type:uuid;index"`
	SenderID              uuid.UUID   `gorm:"type:uuid;not null"`
	Body                  string      `gorm:"not null"`
	Type                  MessageType `gorm:"default:'text'"`
	Mode                  MessageMode `gorm:"default:'client'"`
	ReplyToID             *uuid.UUID  `gorm:"type:uuid"`
	ForwardedFromID       *uuid.UUID  `gorm:"type:uuid"`
	ForwardedFromTicketID *uuid.UUID  `gorm:"type:uuid"`
	FileURL               string
	FileName              string
	FileSize              int64
	FileMimeType          string
	IsEdited              bool       `gorm:"default:false"`
	IsDeleted             bool       `gorm:"default:false"`
	DeletedBy             *uuid.UUID `gorm:"type:uuid"`
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// Связи
	Sender User `gorm:"foreignKey:SenderID"`
}

type HistoryAction string

const (
	HistoryEdited  HistoryAction = "edited"
	HistoryDeleted HistoryAction = "deleted"
)

// MessageHistory хранит append-only журнал правок и удалений.
// Записи никогда не переписываются.
type MessageHistory struct {
	ID           uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MessageID    uuid.UUID     `gorm:"type:uuid;not null;index"`
	Action       HistoryAction `gorm:"not null"`
	PreviousBody string
	ActorID      uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt    time.Time
}

// MessageSeen хранит отметку о прочтении, уникальную на пару (message, user)
type MessageSeen struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	SeenAt    time.Time
}
