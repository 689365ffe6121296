package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/driftfs/driftfs/pkg/directory/models"
)

// minPasswordLength is the directory password policy floor. bcrypt caps
// input at 72 bytes, which bounds the other end.
const minPasswordLength = 8

func (s *GORMStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Groups").
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrUserNotFound)
	}
	return &user, nil
}

func (s *GORMStore) UserExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User, password string) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.PasswordHash = hash
	if user.Quota == "" {
		user.Quota = models.QuotaDefault
	}
	if user.Home == "" {
		user.Home = filepath.Join(s.config.HomeRoot, user.Username)
	}
	user.CreatedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateUser
		}
		return "", err
	}
	return user.ID, nil
}

func (s *GORMStore) DeleteUser(ctx context.Context, username string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		// Revoke delegation before the row goes away
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.SubAdmin{}).Error; err != nil {
			return err
		}

		// Remove from groups (GORM handles the join table)
		if err := tx.Model(&user).Association("Groups").Clear(); err != nil {
			return err
		}

		return tx.Delete(&user).Error
	})
}

func (s *GORMStore) SearchUsers(ctx context.Context, search string, limit, offset *int) ([]string, error) {
	q := s.db.WithContext(ctx).
		Model(&models.User{}).
		Order("username")
	if search != "" {
		pattern := "%" + search + "%"
		q = q.Where("username LIKE ? OR display_name LIKE ?", pattern, pattern)
	}
	if limit != nil {
		q = q.Limit(*limit)
	}
	if offset != nil {
		q = q.Offset(*offset)
	}

	var usernames []string
	if err := q.Pluck("username", &usernames).Error; err != nil {
		return nil, err
	}
	return usernames, nil
}

func (s *GORMStore) SetDisplayName(ctx context.Context, username, displayName string) error {
	return s.updateUserColumn(ctx, username, "display_name", displayName)
}

func (s *GORMStore) SetEmail(ctx context.Context, username, email string) error {
	return s.updateUserColumn(ctx, username, "email", email)
}

func (s *GORMStore) SetQuota(ctx context.Context, username, quota string) error {
	return s.updateUserColumn(ctx, username, "quota", quota)
}

func (s *GORMStore) SetEnabled(ctx context.Context, username string, enabled bool) error {
	return s.updateUserColumn(ctx, username, "enabled", enabled)
}

func (s *GORMStore) SetTwoFactor(ctx context.Context, username string, enabled bool) error {
	return s.updateUserColumn(ctx, username, "two_factor_enabled", enabled)
}

func (s *GORMStore) SetPassword(ctx context.Context, username, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.updateUserColumn(ctx, username, "password_hash", hash)
}

func (s *GORMStore) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Enabled {
		return nil, models.ErrUserDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}

// updateUserColumn updates a single column, returning ErrUserNotFound if no
// row matched.
func (s *GORMStore) updateUserColumn(ctx context.Context, username, column string, value any) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// hashPassword applies the password policy and returns the bcrypt hash.
// Policy violations wrap models.ErrPasswordPolicy so callers can surface
// them as password-specific failures.
func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: must be at least %d characters", models.ErrPasswordPolicy, minPasswordLength)
	}
	if len(password) > 72 {
		return "", fmt.Errorf("%w: must be at most 72 bytes", models.ErrPasswordPolicy)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
