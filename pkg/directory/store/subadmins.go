package store

import (
	"context"
	"strings"

	"github.com/driftfs/driftfs/pkg/directory/models"
)

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (s *GORMStore) CreateSubAdmin(ctx context.Context, username, groupName string) error {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return err
	}
	group, err := s.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}
	if models.IsAdminGroup(group.Name) {
		return models.ErrGroupReserved
	}

	assignment := &models.SubAdmin{UserID: user.ID, GroupID: group.ID}
	if err := s.db.WithContext(ctx).Create(assignment).Error; err != nil {
		// Re-granting is a no-op, the composite key already exists
		if isUniqueConstraintError(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *GORMStore) DeleteSubAdmin(ctx context.Context, username, groupName string) error {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return err
	}
	group, err := s.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", user.ID, group.ID).
		Delete(&models.SubAdmin{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotSubAdmin
	}
	return nil
}

func (s *GORMStore) IsSubAdminOfGroup(ctx context.Context, username, groupName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table("subadmins").
		Joins("JOIN users ON users.id = subadmins.user_id").
		Joins("JOIN groups ON groups.id = subadmins.group_id").
		Where("users.username = ? AND groups.name = ?", username, groupName).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GORMStore) HasSubAdminAssignments(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table("subadmins").
		Joins("JOIN users ON users.id = subadmins.user_id").
		Where("users.username = ?", username).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GORMStore) GetSubAdminGroups(ctx context.Context, username string) ([]string, error) {
	if _, err := s.GetUser(ctx, username); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.WithContext(ctx).
		Table("subadmins").
		Joins("JOIN users ON users.id = subadmins.user_id").
		Joins("JOIN groups ON groups.id = subadmins.group_id").
		Where("users.username = ?", username).
		Order("groups.name").
		Pluck("groups.name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *GORMStore) GetGroupSubAdmins(ctx context.Context, groupName string) ([]string, error) {
	if _, err := s.GetGroup(ctx, groupName); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.WithContext(ctx).
		Table("subadmins").
		Joins("JOIN users ON users.id = subadmins.user_id").
		Joins("JOIN groups ON groups.id = subadmins.group_id").
		Where("groups.name = ?", groupName).
		Order("users.username").
		Pluck("users.username", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}
