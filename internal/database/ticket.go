package database

import (
	"github.com/google/uuid"

	"github.com/deskline/chatgate/internal/models"
)

func (d *Database) GetTicket(id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := d.db.First(&ticket, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *Database) TicketMembership(ticketID, userID uuid.UUID) (*models.TicketMember, error) {
	var member models.TicketMember
	err := d.db.Where("ticket_id = ? AND user_id = ?", ticketID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// TicketRecipients возвращает получателей уведомлений: создателя и всех
// участников тикета, кроме отправителя
func (d *Database) TicketRecipients(ticketID, exclude uuid.UUID) ([]models.User, error) {
	var ticket models.Ticket
	if err := d.db.Preload("Members.User").Preload("Creator").First(&ticket, "id = ?", ticketID).Error; err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{exclude: true}
	users := make([]models.User, 0, len(ticket.Members)+1)

	if !seen[ticket.Creator.ID] {
		seen[ticket.Creator.ID] = true
		users = append(users, ticket.Creator)
	}
	for _, m := range ticket.Members {
		if seen[m.User.ID] {
			continue
		}
		seen[m.User.ID] = true
		users = append(users, m.User)
	}
	return users, nil
}
