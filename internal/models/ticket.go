package models

import (
	"github.com/google/uuid"
	"time"
)

type Ticket struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Subject   string    `gorm:"not null"`
	Status    string    `gorm:"default:'open'"`
	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt time.Time

	// Связи
	Creator User           `gorm:"foreignKey:CreatedBy"`
	Members []TicketMember `gorm:"foreignKey:TicketID"`
}

// TicketMember хранит явную запись о членстве в комнате тикета.
// Создатель тикета считается участником и без записи.
type TicketMember struct {
	TicketID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CanMessageClient bool      `gorm:"default:true"`
	CreatedAt        time.Time

	User User `gorm:"foreignKey:UserID"`
}
