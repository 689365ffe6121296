package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/driftfs/driftfs/pkg/directory/models"
)

func (s *GORMStore) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&group).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrGroupNotFound)
	}
	return &group, nil
}

func (s *GORMStore) GroupExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("name = ?", name).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GORMStore) CreateGroup(ctx context.Context, group *models.Group) (string, error) {
	if err := group.Validate(); err != nil {
		return "", err
	}
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	group.CreatedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateGroup
		}
		return "", err
	}
	return group.ID, nil
}

func (s *GORMStore) DeleteGroup(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("name = ?", name).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		// Delegations on the group die with it
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.SubAdmin{}).Error; err != nil {
			return err
		}

		if err := tx.Model(&group).Association("Users").Clear(); err != nil {
			return err
		}

		return tx.Delete(&group).Error
	})
}

func (s *GORMStore) ListGroups(ctx context.Context, search string, limit, offset *int) ([]string, error) {
	q := s.db.WithContext(ctx).
		Model(&models.Group{}).
		Order("name")
	if search != "" {
		q = q.Where("name LIKE ?", "%"+search+"%")
	}
	if limit != nil {
		q = q.Limit(*limit)
	}
	if offset != nil {
		q = q.Offset(*offset)
	}

	var names []string
	if err := q.Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func (s *GORMStore) AddUserToGroup(ctx context.Context, username, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		var group models.Group
		if err := tx.Where("name = ?", groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&user).Association("Groups").Append(&group)
	})
}

func (s *GORMStore) RemoveUserFromGroup(ctx context.Context, username, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		var group models.Group
		if err := tx.Where("name = ?", groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&user).Association("Groups").Delete(&group)
	})
}

func (s *GORMStore) IsInGroup(ctx context.Context, username, groupName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table("user_groups").
		Joins("JOIN users ON users.id = user_groups.user_id").
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("users.username = ? AND groups.name = ?", username, groupName).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GORMStore) GetUserGroupNames(ctx context.Context, username string) ([]string, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.GetGroupNames(), nil
}

func (s *GORMStore) GetGroupMembers(ctx context.Context, groupName string) ([]*models.User, error) {
	if _, err := s.GetGroup(ctx, groupName); err != nil {
		return nil, err
	}

	var users []*models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("groups.name = ?", groupName).
		Order("users.username").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GORMStore) DisplayNamesInGroup(ctx context.Context, groupName, search string) ([]UserDisplay, error) {
	members, err := s.GetGroupMembers(ctx, groupName)
	if err != nil {
		return nil, err
	}

	results := make([]UserDisplay, 0, len(members))
	for _, m := range members {
		if search != "" && !containsFold(m.GetDisplayName(), search) {
			continue
		}
		results = append(results, UserDisplay{
			Username:    m.Username,
			DisplayName: m.GetDisplayName(),
		})
	}
	return results, nil
}
