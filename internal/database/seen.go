package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/deskline/chatgate/internal/models"
)

// UpsertSeen создает отметку о прочтении. Повторная отметка игнорируется
// за счет уникальности пары (message_id, user_id).
func (d *Database) UpsertSeen(messageID, userID uuid.UUID, at time.Time) error {
	record := models.MessageSeen{
		MessageID: messageID,
		UserID:    userID,
		SeenAt:    at,
	}
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

func (d *Database) SeenBy(messageID uuid.UUID) ([]uuid.UUID, error) {
	var records []models.MessageSeen
	err := d.db.Where("message_id = ?", messageID).Find(&records).Error
	if err != nil {
		return nil, err
	}

	users := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		users = append(users, r.UserID)
	}
	return users, nil
}
