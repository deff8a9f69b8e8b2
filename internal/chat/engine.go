package chat

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deskline/chatgate/internal/authz"
	"github.com/deskline/chatgate/internal/models"
)

// Текст заглушки одинаков для всех: клиент сравнивает deletedBy со своим id
// и сам решает, показать "You deleted this message" или общий вариант.
const deletedPlaceholder = "This message was deleted"

const historyLimit = 50

// Store описывает хранилище, которое движок требует от persistence-слоя.
// Отсутствие записи возвращается как gorm.ErrRecordNotFound.
type Store interface {
	GetUser(id uuid.UUID) (*models.User, error)
	GetTicket(id uuid.UUID) (*models.Ticket, error)
	GetGroup(id uuid.UUID) (*models.Group, error)
	TicketMembership(ticketID, userID uuid.UUID) (*models.TicketMember, error)
	IsGroupMember(groupID, userID uuid.UUID) (bool, error)
	GetMessage(id uuid.UUID) (*models.Message, error)
	SaveMessage(m *models.Message) error
	UpdateMessage(m *models.Message) error
	AppendHistory(h *models.MessageHistory) error
	UpsertSeen(messageID, userID uuid.UUID, at time.Time) error
	SeenBy(messageID uuid.UUID) ([]uuid.UUID, error)
	TicketMessages(ticketID uuid.UUID, limit int, clientOnly bool) ([]models.Message, error)
	GroupMessages(groupID uuid.UUID, limit int) ([]models.Message, error)
}

// Actor представляет аутентифицированного инициатора операции.
// Поля берутся только из привязки соединения, никогда из payload.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

type UserInfo struct {
	ID          uuid.UUID   `json:"id"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
}

// ReplySnapshot хранит денормализованный снимок цитируемого сообщения
type ReplySnapshot struct {
	MessageID  uuid.UUID          `json:"messageId"`
	SenderName string             `json:"senderName"`
	Body       string             `json:"body"`
	Type       models.MessageType `json:"type"`
}

type ForwardInfo struct {
	MessageID uuid.UUID `json:"messageId"`
	TicketID  uuid.UUID `json:"ticketId"`
}

// MessageView описывает каноническое исходящее представление сообщения
type MessageView struct {
	ID            uuid.UUID          `json:"id"`
	TicketID      *uuid.UUID         `json:"ticketId,omitempty"`
	GroupID       *uuid.UUID         `json:"groupId,omitempty"`
	Sender        UserInfo           `json:"sender"`
	Body          string             `json:"body"`
	Type          models.MessageType `json:"type"`
	Mode          models.MessageMode `json:"mode,omitempty"`
	ReplyTo       *ReplySnapshot     `json:"replyTo,omitempty"`
	ForwardedFrom *ForwardInfo       `json:"forwardedFrom,omitempty"`
	FileURL       string             `json:"fileUrl,omitempty"`
	FileName      string             `json:"fileName,omitempty"`
	FileSize      int64              `json:"fileSize,omitempty"`
	FileMimeType  string             `json:"fileMimeType,omitempty"`
	IsEdited      bool               `json:"isEdited"`
	IsDeleted     bool               `json:"isDeleted"`
	DeletedBy     *uuid.UUID         `json:"deletedBy,omitempty"`
	SeenBy        []uuid.UUID        `json:"seenBy"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ticketFacts собирает факты о членстве для матрицы доступа.
// Создатель тикета считается участником без записи.
func (e *Engine) ticketFacts(t *models.Ticket, userID uuid.UUID) (authz.Membership, error) {
	facts := authz.Membership{IsCreator: t.CreatedBy == userID}
	rec, err := e.store.TicketMembership(t.ID, userID)
	if err != nil {
		if notFound(err) {
			return facts, nil
		}
		return facts, Dependency("failed to load ticket membership", err)
	}
	facts.IsMember = true
	facts.CanMessageClient = rec.CanMessageClient
	return facts, nil
}

// AuthorizeJoinTicket проверяет право присоединиться к комнате тикета
func (e *Engine) AuthorizeJoinTicket(actor Actor, ticketID uuid.UUID) (*models.Ticket, error) {
	ticket, err := e.store.GetTicket(ticketID)
	if err != nil {
		if notFound(err) {
			return nil, NotFound("ticket not found")
		}
		return nil, Dependency("failed to load ticket", err)
	}

	facts, err := e.ticketFacts(ticket, actor.ID)
	if err != nil {
		return nil, err
	}
	if d := authz.Decide(actor.Role, authz.KindTicket, authz.ActionJoin, "", facts); !d.Allowed {
		return nil, Forbidden(d.Reason)
	}
	return ticket, nil
}

// AuthorizeJoinGroup проверяет право присоединиться к группе
func (e *Engine) AuthorizeJoinGroup(actor Actor, groupID uuid.UUID) (*models.Group, error) {
	group, err := e.store.GetGroup(groupID)
	if err != nil {
		if notFound(err) {
			return nil, NotFound("group not found")
		}
		return nil, Dependency("failed to load group", err)
	}

	member, err := e.store.IsGroupMember(groupID, actor.ID)
	if err != nil {
		return nil, Dependency("failed to load group membership", err)
	}
	facts := authz.Membership{IsMember: member}
	if d := authz.Decide(actor.Role, authz.KindGroup, authz.ActionJoin, "", facts); !d.Allowed {
		return nil, Forbidden(d.Reason)
	}
	return group, nil
}

type CreateInput struct {
	TicketID     *uuid.UUID
	GroupID      *uuid.UUID
	Body         string
	Type         models.MessageType
	Mode         models.MessageMode
	ReplyToID    *uuid.UUID
	FileURL      string
	FileName     string
	FileSize     int64
	FileMimeType string
}

// CreateMessage создает сообщение в тикете или группе.
// Отправитель всегда резолвится заново из хранилища.
func (e *Engine) CreateMessage(actor Actor, in CreateInput) (*MessageView, error) {
	if (in.TicketID == nil) == (in.GroupID == nil) {
		return nil, Invalid("exactly one of ticketId or groupId is required")
	}
	if in.Body == "" && in.FileURL == "" {
		return nil, Invalid("message body is required")
	}
	if in.Type == "" {
		in.Type = models.MessageText
	}

	msg := &models.Message{
		SenderID:     actor.ID,
		Body:         in.Body,
		Type:         in.Type,
		ReplyToID:    in.ReplyToID,
		FileURL:      in.FileURL,
		FileName:     in.FileName,
		FileSize:     in.FileSize,
		FileMimeType: in.FileMimeType,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if in.TicketID != nil {
		if in.Mode == "" {
			in.Mode = models.ModeClient
		}
		if in.Mode != models.ModeClient && in.Mode != models.ModeInternal {
			return nil, Invalid("invalid message mode")
		}

		ticket, err := e.store.GetTicket(*in.TicketID)
		if err != nil {
			if notFound(err) {
				return nil, NotFound("ticket not found")
			}
			return nil, Dependency("failed to load ticket", err)
		}
		facts, err := e.ticketFacts(ticket, actor.ID)
		if err != nil {
			return nil, err
		}
		if d := authz.Decide(actor.Role, authz.KindTicket, authz.ActionWrite, in.Mode, facts); !d.Allowed {
			return nil, Forbidden(d.Reason)
		}
		msg.TicketID = in.TicketID
		msg.Mode = in.Mode
	} else {
		if _, err := e.store.GetGroup(*in.GroupID); err != nil {
			if notFound(err) {
				return nil, NotFound("group not found")
			}
			return nil, Dependency("failed to load group", err)
		}
		member, err := e.store.IsGroupMember(*in.GroupID, actor.ID)
		if err != nil {
			return nil, Dependency("failed to load group membership", err)
		}
		if d := authz.Decide(actor.Role, authz.KindGroup, authz.ActionWrite, "", authz.Membership{IsMember: member}); !d.Allowed {
			return nil, Forbidden(d.Reason)
		}
		msg.GroupID = in.GroupID
	}

	sender, err := e.store.GetUser(actor.ID)
	if err != nil {
		return nil, Dependency("failed to load sender", err)
	}

	reply, err := e.resolveReply(in.ReplyToID)
	if err != nil {
		return nil, err
	}

	if err := e.store.SaveMessage(msg); err != nil {
		return nil, Dependency("failed to save message", err)
	}

	view := e.view(msg, sender)
	view.ReplyTo = reply
	return view, nil
}

// resolveReply строит снимок цитируемого сообщения.
// Тело удаленного сообщения отдается заглушкой.
func (e *Engine) resolveReply(replyToID *uuid.UUID) (*ReplySnapshot, error) {
	if replyToID == nil {
		return nil, nil
	}
	ref, err := e.store.GetMessage(*replyToID)
	if err != nil {
		if notFound(err) {
			return nil, NotFound("reply-to message not found")
		}
		return nil, Dependency("failed to load reply-to message", err)
	}

	snapshot := &ReplySnapshot{
		MessageID: ref.ID,
		Body:      ref.Body,
		Type:      ref.Type,
	}
	if ref.IsDeleted {
		snapshot.Body = deletedPlaceholder
	}
	if sender, err := e.store.GetUser(ref.SenderID); err == nil {
		snapshot.SenderName = sender.DisplayName
	}
	return snapshot, nil
}

// EditMessage правит текст сообщения.
// Разрешено только автору, только для текстовых и не удаленных.
func (e *Engine) EditMessage(actor Actor, ticketID, messageID uuid.UUID, body string) (*MessageView, error) {
	if body == "" {
		return nil, Invalid("message body is required")
	}

	msg, err := e.ticketMessage(ticketID, messageID)
	if err != nil {
		return nil, err
	}

	if msg.SenderID != actor.ID {
		return nil, Forbidden("only the sender can edit a message")
	}
	if msg.IsDeleted {
		return nil, InvalidState("cannot edit a deleted message")
	}
	if msg.Type != models.MessageText {
		return nil, InvalidState("only text messages can be edited")
	}

	history := &models.MessageHistory{
		MessageID:    msg.ID,
		Action:       models.HistoryEdited,
		PreviousBody: msg.Body,
		ActorID:      actor.ID,
		CreatedAt:    time.Now(),
	}
	if err := e.store.AppendHistory(history); err != nil {
		return nil, Dependency("failed to record message history", err)
	}

	msg.Body = body
	msg.IsEdited = true
	msg.UpdatedAt = time.Now()
	if err := e.store.UpdateMessage(msg); err != nil {
		return nil, Dependency("failed to update message", err)
	}

	return e.loadView(msg)
}

// DeleteMessage мягко удаляет сообщение: автор или админ.
// Повторное удаление возвращает ошибку без второй записи в истории.
func (e *Engine) DeleteMessage(actor Actor, ticketID, messageID uuid.UUID) (*MessageView, error) {
	msg, err := e.ticketMessage(ticketID, messageID)
	if err != nil {
		return nil, err
	}

	if msg.IsDeleted {
		return nil, InvalidState("message is already deleted")
	}
	if msg.SenderID != actor.ID && actor.Role != models.RoleAdmin {
		return nil, Forbidden("only the sender or an admin can delete a message")
	}

	history := &models.MessageHistory{
		MessageID:    msg.ID,
		Action:       models.HistoryDeleted,
		PreviousBody: msg.Body,
		ActorID:      actor.ID,
		CreatedAt:    time.Now(),
	}
	if err := e.store.AppendHistory(history); err != nil {
		return nil, Dependency("failed to record message history", err)
	}

	msg.Body = deletedPlaceholder
	msg.IsDeleted = true
	msg.DeletedBy = &actor.ID
	msg.FileURL = ""
	msg.FileName = ""
	msg.FileSize = 0
	msg.FileMimeType = ""
	msg.UpdatedAt = time.Now()
	if err := e.store.UpdateMessage(msg); err != nil {
		return nil, Dependency("failed to update message", err)
	}

	return e.loadView(msg)
}

// ForwardMessage копирует сообщение в другой тикет.
// Требуется членство в обеих комнатах; исходное сообщение не трогается.
func (e *Engine) ForwardMessage(actor Actor, sourceTicketID, targetTicketID, messageID uuid.UUID, mode models.MessageMode) (*MessageView, error) {
	source, err := e.store.GetTicket(sourceTicketID)
	if err != nil {
		if notFound(err) {
			return nil, NotFound("source ticket not found")
		}
		return nil, Dependency("failed to load source ticket", err)
	}
	target, err := e.store.GetTicket(targetTicketID)
	if err != nil {
		if notFound(err) {
			return nil, NotFound("target ticket not found")
		}
		return nil, Dependency("failed to load target ticket", err)
	}

	sourceFacts, err := e.ticketFacts(source, actor.ID)
	if err != nil {
		return nil, err
	}
	if !sourceFacts.IsCreator && !sourceFacts.IsMember {
		return nil, Forbidden("you are not a member of the source ticket")
	}

	msg, err := e.ticketMessage(sourceTicketID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, InvalidState("cannot forward a deleted message")
	}

	if mode == "" {
		mode = models.ModeClient
	}
	if mode != models.ModeClient && mode != models.ModeInternal {
		return nil, Invalid("invalid message mode")
	}
	targetFacts, err := e.ticketFacts(target, actor.ID)
	if err != nil {
		return nil, err
	}
	if !targetFacts.IsCreator && !targetFacts.IsMember {
		return nil, Forbidden("you are not a member of the target ticket")
	}
	if d := authz.Decide(actor.Role, authz.KindTicket, authz.ActionWrite, mode, targetFacts); !d.Allowed {
		return nil, Forbidden(d.Reason)
	}

	sender, err := e.store.GetUser(actor.ID)
	if err != nil {
		return nil, Dependency("failed to load sender", err)
	}

	copied := &models.Message{
		TicketID:              &targetTicketID,
		SenderID:              actor.ID,
		Body:                  msg.Body,
		Type:                  msg.Type,
		Mode:                  mode,
		ForwardedFromID:       &msg.ID,
		ForwardedFromTicketID: &sourceTicketID,
		FileURL:               msg.FileURL,
		FileName:              msg.FileName,
		FileSize:              msg.FileSize,
		FileMimeType:          msg.FileMimeType,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	if err := e.store.SaveMessage(copied); err != nil {
		return nil, Dependency("failed to save forwarded message", err)
	}

	return e.view(copied, sender), nil
}

// MarkSeen отмечает сообщения прочитанными. Best-effort: дубликаты и ошибки
// отдельных записей не останавливают остальные и не блокируют broadcast.
func (e *Engine) MarkSeen(actor Actor, messageIDs []uuid.UUID) {
	now := time.Now()
	for _, id := range messageIDs {
		if err := e.store.UpsertSeen(id, actor.ID, now); err != nil {
			log.Printf("Failed to record seen mark for message %s: %v", id, err)
		}
	}
}

// TicketHistory возвращает последние сообщения тикета для восстановления
// ленты после переподключения. Клиенты не видят внутреннюю ветку.
func (e *Engine) TicketHistory(actor Actor, ticketID uuid.UUID) ([]MessageView, error) {
	clientOnly := actor.Role == models.RoleClient
	messages, err := e.store.TicketMessages(ticketID, historyLimit, clientOnly)
	if err != nil {
		return nil, Dependency("failed to load ticket history", err)
	}
	return e.views(messages), nil
}

// GroupHistory возвращает последние сообщения группы
func (e *Engine) GroupHistory(groupID uuid.UUID) ([]MessageView, error) {
	messages, err := e.store.GroupMessages(groupID, historyLimit)
	if err != nil {
		return nil, Dependency("failed to load group history", err)
	}
	return e.views(messages), nil
}

func (e *Engine) ticketMessage(ticketID, messageID uuid.UUID) (*models.Message, error) {
	msg, err := e.store.GetMessage(messageID)
	if err != nil {
		if notFound(err) {
			return nil, NotFound("message not found")
		}
		return nil, Dependency("failed to load message", err)
	}
	if msg.TicketID == nil || *msg.TicketID != ticketID {
		return nil, NotFound("message not found in this ticket")
	}
	return msg, nil
}

func (e *Engine) loadView(msg *models.Message) (*MessageView, error) {
	sender, err := e.store.GetUser(msg.SenderID)
	if err != nil {
		return nil, Dependency("failed to load sender", err)
	}
	view := e.view(msg, sender)
	e.fillSeen(view)
	return view, nil
}

// fillSeen подтягивает отметки о прочтении. Best-effort: при ошибке
// чтения список остается пустым.
func (e *Engine) fillSeen(view *MessageView) {
	seen, err := e.store.SeenBy(view.ID)
	if err != nil {
		log.Printf("Failed to load seen marks for message %s: %v", view.ID, err)
		return
	}
	if len(seen) > 0 {
		view.SeenBy = seen
	}
}

func (e *Engine) view(msg *models.Message, sender *models.User) *MessageView {
	view := &MessageView{
		ID:       msg.ID,
		TicketID: msg.TicketID,
		GroupID:  msg.GroupID,
		Sender: UserInfo{
			ID:          sender.ID,
			DisplayName: sender.DisplayName,
			Role:        sender.Role,
			AvatarURL:   sender.AvatarURL,
		},
		Body:         msg.Body,
		Type:         msg.Type,
		FileURL:      msg.FileURL,
		FileName:     msg.FileName,
		FileSize:     msg.FileSize,
		FileMimeType: msg.FileMimeType,
		IsEdited:     msg.IsEdited,
		IsDeleted:    msg.IsDeleted,
		DeletedBy:    msg.DeletedBy,
		SeenBy:       make([]uuid.UUID, 0),
		CreatedAt:    msg.CreatedAt,
		UpdatedAt:    msg.UpdatedAt,
	}
	if msg.TicketID != nil {
		view.Mode = msg.Mode
	}
	if msg.ForwardedFromID != nil && msg.ForwardedFromTicketID != nil {
		view.ForwardedFrom = &ForwardInfo{
			MessageID: *msg.ForwardedFromID,
			TicketID:  *msg.ForwardedFromTicketID,
		}
	}
	return view
}

func (e *Engine) views(messages []models.Message) []MessageView {
	out := make([]MessageView, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		view := e.view(m, &m.Sender)
		e.fillSeen(view)
		out = append(out, *view)
	}
	return out
}
