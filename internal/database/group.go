package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deskline/chatgate/internal/models"
)

func (d *Database) GetGroup(id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := d.db.First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (d *Database) IsGroupMember(groupID, userID uuid.UUID) (bool, error) {
	var member models.GroupMember
	err := d.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
