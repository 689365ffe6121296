package models

import "time"

// SubAdmin is a delegation assignment: the user may administer members of
// the group. The composite primary key makes re-granting idempotent at the
// schema level.
type SubAdmin struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	GroupID   string    `gorm:"primaryKey;size:36" json:"group_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for SubAdmin.
func (SubAdmin) TableName() string {
	return "subadmins"
}
