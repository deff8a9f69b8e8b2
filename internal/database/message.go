package database

import (
	"github.com/google/uuid"

	"github.com/deskline/chatgate/internal/models"
)

func (d *Database) SaveMessage(message *models.Message) error {
	return d.db.Create(message).Error
}

func (d *Database) GetMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (d *Database) UpdateMessage(message *models.Message) error {
	return d.db.Save(message).Error
}

// AppendHistory пишет запись аудита. Журнал только дополняется.
func (d *Database) AppendHistory(entry *models.MessageHistory) error {
	return d.db.Create(entry).Error
}

// TicketMessages получает последние сообщения тикета в хронологическом порядке.
// clientOnly скрывает внутреннюю ветку.
func (d *Database) TicketMessages(ticketID uuid.UUID, limit int, clientOnly bool) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.Where("ticket_id = ?", ticketID)
	if clientOnly {
		query = query.Where("mode = ?", models.ModeClient)
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Разворачиваем порядок, чтобы старые сообщения были первыми
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (d *Database) GroupMessages(groupID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message

	err := d.db.Where("group_id = ?", groupID).
		Order("created_at DESC").
		Limit(limit).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
