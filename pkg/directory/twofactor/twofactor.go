// Package twofactor manages two-factor authentication enrollment flags.
package twofactor

import "context"

// Flags is the slice of the user store the manager needs.
type Flags interface {
	SetTwoFactor(ctx context.Context, username string, enabled bool) error
}

// Manager enables and disables two-factor enrollment for users.
type Manager interface {
	Enable(ctx context.Context, username string) error
	Disable(ctx context.Context, username string) error
}

// StoreManager persists enrollment state through the directory store.
type StoreManager struct {
	flags Flags
}

// NewStoreManager creates a Manager backed by the directory store.
func NewStoreManager(flags Flags) *StoreManager {
	return &StoreManager{flags: flags}
}

func (m *StoreManager) Enable(ctx context.Context, username string) error {
	return m.flags.SetTwoFactor(ctx, username, true)
}

func (m *StoreManager) Disable(ctx context.Context, username string) error {
	return m.flags.SetTwoFactor(ctx, username, false)
}
