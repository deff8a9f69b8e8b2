// Package authz содержит чистую матрицу доступа: роль, тип комнаты, действие.
// Никакого I/O: факты о членстве собирает вызывающая сторона.
package authz

import (
	"github.com/deskline/chatgate/internal/models"
)

type Kind string

const (
	KindTicket Kind = "ticket"
	KindGroup  Kind = "group"
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Membership собирает факты о членстве пользователя в комнате на момент проверки
type Membership struct {
	IsCreator        bool
	IsMember         bool
	CanMessageClient bool
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Decide применяет матрицу доступа. mode учитывается только при записи в тикет:
// клиент пишет только в клиентскую ветку, для сотрудников и фрилансеров
// клиентская ветка закрыта без флага CanMessageClient.
func Decide(role models.Role, kind Kind, action Action, mode models.MessageMode, m Membership) Decision {
	if kind == KindGroup {
		if m.IsMember {
			return allow()
		}
		return deny("you are not a member of this group")
	}

	switch action {
	case ActionJoin, ActionRead:
		// Сотрудники и админы видят все тикеты
		if role == models.RoleEmployee || role == models.RoleAdmin {
			return allow()
		}
		if m.IsCreator || m.IsMember {
			return allow()
		}
		return deny("you do not have access to this ticket")

	case ActionWrite:
		if !m.IsCreator && !m.IsMember {
			return deny("you are not a member of this ticket")
		}
		switch role {
		case models.RoleClient:
			if mode != models.ModeClient {
				return deny("clients can only write to the client-visible thread")
			}
		case models.RoleEmployee, models.RoleFreelancer:
			if mode == models.ModeClient && !m.CanMessageClient && !m.IsCreator {
				return deny("you are not allowed to message the client-visible thread")
			}
		}
		return allow()
	}

	return deny("unknown action")
}
