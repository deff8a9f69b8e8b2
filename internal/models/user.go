package models

import (
	"github.com/google/uuid"
	"time"
)

// Role определяет роль пользователя на платформе
type Role string

const (
	RoleClient     Role = "client"
	RoleEmployee   Role = "employee"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email       string    `gorm:"uniqueIndex;not null"`
	DisplayName string    `gorm:"not null"`
	Role        Role      `gorm:"not null;check:role IN ('client','employee','freelancer','admin')"`
	Phone       string
	AvatarURL   string
	LastSeenAt  time.Time
	CreatedAt   time.Time
}
