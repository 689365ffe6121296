package models

import "errors"

// Common errors for directory operations.
var (
	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordPolicy     = errors.New("password does not satisfy the password policy")

	// Group errors
	ErrGroupNotFound  = errors.New("group not found")
	ErrDuplicateGroup = errors.New("group already exists")
	ErrGroupReserved  = errors.New("group is reserved")

	// Sub-admin errors
	ErrNotSubAdmin = errors.New("user is not a subadmin of this group")
)
