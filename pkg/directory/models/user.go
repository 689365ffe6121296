package models

import (
	"fmt"
	"strings"
	"time"
)

// Quota policy values that bypass byte-size parsing. Any other quota string
// is a canonical human-readable byte size (see internal/bytesize).
const (
	QuotaNone    = "none"
	QuotaDefault = "default"
)

// User represents a DriftFS account in the provisioning directory.
//
// Usernames are stored in their canonical case-sensitive form; self-lookup
// comparisons are case-insensitive (see IsSameUser). The password hash is
// bcrypt and never leaves the store layer.
type User struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Username         string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	PasswordHash     string    `gorm:"not null" json:"-"`
	DisplayName      string    `gorm:"size:255" json:"display_name,omitempty"`
	Email            string    `gorm:"size:255" json:"email,omitempty"`
	Quota            string    `gorm:"size:64;default:default" json:"quota"`
	Enabled          bool      `gorm:"default:true" json:"enabled"`
	Home             string    `gorm:"size:1024" json:"home,omitempty"`
	TwoFactorEnabled bool      `gorm:"default:false" json:"two_factor_enabled"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Many-to-many relationship with groups
	Groups []Group `gorm:"many2many:user_groups;" json:"groups,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// GetDisplayName returns the display name, or username if display name is not set.
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// HasGroup checks if the user belongs to the specified group.
func (u *User) HasGroup(groupName string) bool {
	for _, g := range u.Groups {
		if g.Name == groupName {
			return true
		}
	}
	return false
}

// GetGroupNames returns a slice of group names the user belongs to.
func (u *User) GetGroupNames() []string {
	names := make([]string, len(u.Groups))
	for i, g := range u.Groups {
		names[i] = g.Name
	}
	return names
}

// IsSameUser reports whether other refers to this user. Usernames are
// canonical case-sensitive identifiers but self-checks compare folded.
func (u *User) IsSameUser(other string) bool {
	return strings.EqualFold(u.Username, other)
}

// Validate checks if the user has valid configuration.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}
