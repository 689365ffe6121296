package models

import (
	"fmt"
	"strings"
	"time"
)

// AdminGroup is the reserved group whose members are global administrators.
// It can never receive sub-admin assignments.
const AdminGroup = "admin"

// Group represents a DriftFS group for organizing users and delegation.
type Group struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Many-to-many relationship with users
	Users []User `gorm:"many2many:user_groups;" json:"users,omitempty"`
}

// TableName returns the table name for Group.
func (Group) TableName() string {
	return "groups"
}

// IsAdminGroup reports whether name refers to the reserved admin group.
// The reservation is case-insensitive so "Admin" cannot be delegated either.
func IsAdminGroup(name string) bool {
	return strings.EqualFold(name, AdminGroup)
}

// Validate checks if the group has valid configuration.
func (g *Group) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("group name is required")
	}
	return nil
}
