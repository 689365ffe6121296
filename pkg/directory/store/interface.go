// Package store implements the system of record for users, groups and
// sub-admin delegation, backed by GORM (SQLite or PostgreSQL).
package store

import (
	"context"

	"github.com/driftfs/driftfs/pkg/directory/models"
)

// UserDisplay pairs a user identifier with its display name, as returned by
// per-group display name searches.
type UserDisplay struct {
	Username    string
	DisplayName string
}

// UserStore defines user directory operations.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	UserExists(ctx context.Context, username string) (bool, error)

	// CreateUser hashes the password, applies the password policy, and
	// persists the user. Returns the generated user ID.
	CreateUser(ctx context.Context, user *models.User, password string) (string, error)
	DeleteUser(ctx context.Context, username string) error

	// SearchUsers returns usernames whose username or display name contains
	// search, ordered by username. Nil limit/offset mean unbounded/zero.
	SearchUsers(ctx context.Context, search string, limit, offset *int) ([]string, error)

	SetDisplayName(ctx context.Context, username, displayName string) error
	SetEmail(ctx context.Context, username, email string) error
	SetPassword(ctx context.Context, username, password string) error
	SetQuota(ctx context.Context, username, quota string) error
	SetEnabled(ctx context.Context, username string, enabled bool) error
	SetTwoFactor(ctx context.Context, username string, enabled bool) error

	ValidateCredentials(ctx context.Context, username, password string) (*models.User, error)
}

// GroupStore defines group and membership operations.
type GroupStore interface {
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	GroupExists(ctx context.Context, name string) (bool, error)
	CreateGroup(ctx context.Context, group *models.Group) (string, error)
	DeleteGroup(ctx context.Context, name string) error
	ListGroups(ctx context.Context, search string, limit, offset *int) ([]string, error)

	AddUserToGroup(ctx context.Context, username, groupName string) error
	RemoveUserFromGroup(ctx context.Context, username, groupName string) error
	IsInGroup(ctx context.Context, username, groupName string) (bool, error)
	GetUserGroupNames(ctx context.Context, username string) ([]string, error)
	GetGroupMembers(ctx context.Context, groupName string) ([]*models.User, error)

	// DisplayNamesInGroup returns the members of a group whose display name
	// contains search. The display name falls back to the username when unset.
	DisplayNamesInGroup(ctx context.Context, groupName, search string) ([]UserDisplay, error)
}

// SubAdminStore defines sub-admin delegation operations.
type SubAdminStore interface {
	CreateSubAdmin(ctx context.Context, username, groupName string) error
	DeleteSubAdmin(ctx context.Context, username, groupName string) error
	IsSubAdminOfGroup(ctx context.Context, username, groupName string) (bool, error)
	HasSubAdminAssignments(ctx context.Context, username string) (bool, error)
	GetSubAdminGroups(ctx context.Context, username string) ([]string, error)
	GetGroupSubAdmins(ctx context.Context, groupName string) ([]string, error)
}

// Store is the full directory interface implemented by GORMStore.
type Store interface {
	UserStore
	GroupStore
	SubAdminStore

	// Ping verifies database connectivity for readiness checks.
	Ping(ctx context.Context) error
}
