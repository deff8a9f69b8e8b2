// Package notify задает границу с внешними каналами уведомлений (email/SMS/WhatsApp).
// Вызывается после успешного broadcast и никогда не блокирует доставку:
// ошибки логируются и глотаются.
package notify

import (
	"context"
	"log"

	"github.com/deskline/chatgate/internal/models"
)

type Notifier interface {
	MessageCreated(ctx context.Context, recipient models.User, ticket *models.Ticket, senderName, preview string) error
}

// LogNotifier пишет уведомления в лог, заглушка для разработки
type LogNotifier struct{}

func (LogNotifier) MessageCreated(_ context.Context, recipient models.User, ticket *models.Ticket, senderName, preview string) error {
	log.Printf("Notify %s: new message in ticket %s from %s: %.60q", recipient.Email, ticket.ID, senderName, preview)
	return nil
}
