// Package authz derives caller roles from the directory. Roles are never
// stored: every query goes back to the membership and delegation tables, so
// a revocation takes effect on the next request.
package authz

import (
	"context"

	"github.com/driftfs/driftfs/pkg/directory/models"
)

// Membership is the slice of the directory the resolver reads.
type Membership interface {
	IsInGroup(ctx context.Context, username, groupName string) (bool, error)
}

// Delegation is the slice of the sub-admin registry the resolver reads.
type Delegation interface {
	IsSubAdminOfGroup(ctx context.Context, username, groupName string) (bool, error)
	HasSubAdminAssignments(ctx context.Context, username string) (bool, error)
	GetSubAdminGroups(ctx context.Context, username string) ([]string, error)
}

// RoleResolver answers authorization questions about a caller. All methods
// are pure directory queries; admin status dominates sub-admin status.
type RoleResolver interface {
	// IsAdmin reports whether the user is a member of the admin group.
	IsAdmin(ctx context.Context, username string) (bool, error)

	// IsSubAdmin reports whether the user is an admin or holds at least one
	// sub-admin assignment.
	IsSubAdmin(ctx context.Context, username string) (bool, error)

	// IsUserAccessible reports whether caller may manage target: admin, or
	// sub-admin of any group containing target.
	IsUserAccessible(ctx context.Context, caller, target string) (bool, error)

	// CanManageGroup reports whether caller may manage the group: admin, or
	// sub-admin of that specific group.
	CanManageGroup(ctx context.Context, caller, groupName string) (bool, error)

	// SubAdminGroups returns the group names the user sub-administers.
	SubAdminGroups(ctx context.Context, username string) ([]string, error)
}

// Resolver implements RoleResolver over directory interfaces.
type Resolver struct {
	membership Membership
	delegation Delegation
}

// NewResolver creates a Resolver reading from the given directory slices.
func NewResolver(membership Membership, delegation Delegation) *Resolver {
	return &Resolver{membership: membership, delegation: delegation}
}

func (r *Resolver) IsAdmin(ctx context.Context, username string) (bool, error) {
	return r.membership.IsInGroup(ctx, username, models.AdminGroup)
}

func (r *Resolver) IsSubAdmin(ctx context.Context, username string) (bool, error) {
	admin, err := r.IsAdmin(ctx, username)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return r.delegation.HasSubAdminAssignments(ctx, username)
}

func (r *Resolver) IsUserAccessible(ctx context.Context, caller, target string) (bool, error) {
	admin, err := r.IsAdmin(ctx, caller)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}

	groups, err := r.delegation.GetSubAdminGroups(ctx, caller)
	if err != nil {
		return false, err
	}
	for _, group := range groups {
		member, err := r.membership.IsInGroup(ctx, target, group)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) CanManageGroup(ctx context.Context, caller, groupName string) (bool, error) {
	admin, err := r.IsAdmin(ctx, caller)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return r.delegation.IsSubAdminOfGroup(ctx, caller, groupName)
}

func (r *Resolver) SubAdminGroups(ctx context.Context, username string) ([]string, error) {
	return r.delegation.GetSubAdminGroups(ctx, username)
}
