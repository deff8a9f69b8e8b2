package database

import (
	"errors"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/deskline/chatgate/internal/models"
)

// Connect открывает Postgres по DATABASE_URL и прогоняет миграции
func Connect() (*Database, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Ticket{},
		&models.TicketMember{},
		&models.Group{},
		&models.GroupMember{},
		&models.Message{},
		&models.MessageHistory{},
		&models.MessageSeen{},
	)
	if err != nil {
		return nil, err
	}

	return NewDatabase(db), nil
}
