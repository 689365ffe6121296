package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/driftfs/driftfs/pkg/directory/models"
	"github.com/driftfs/driftfs/pkg/directory/quota"
	"github.com/driftfs/driftfs/pkg/directory/store"
)

// fakeDirectory is an in-memory implementation of the user and group store
// interfaces for handler tests.
type fakeDirectory struct {
	users   map[string]*models.User
	groups  map[string]bool
	members map[string]map[string]bool // group -> set of usernames

	nextID int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:   map[string]*models.User{},
		groups:  map[string]bool{models.AdminGroup: true},
		members: map[string]map[string]bool{models.AdminGroup: {}},
	}
}

// addUser seeds a user, optionally into groups.
func (f *fakeDirectory) addUser(username string, groups ...string) *models.User {
	f.nextID++
	user := &models.User{
		ID:       fmt.Sprintf("uuid-%d", f.nextID),
		Username: username,
		Quota:    models.QuotaDefault,
		Enabled:  true,
		Home:     "/homes/" + username,
	}
	f.users[username] = user
	for _, g := range groups {
		f.addGroup(g)
		f.members[g][username] = true
	}
	return user
}

func (f *fakeDirectory) addGroup(name string) {
	if !f.groups[name] {
		f.groups[name] = true
		f.members[name] = map[string]bool{}
	}
}

func (f *fakeDirectory) GetUser(_ context.Context, username string) (*models.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeDirectory) UserExists(_ context.Context, username string) (bool, error) {
	_, ok := f.users[username]
	return ok, nil
}

func (f *fakeDirectory) CreateUser(_ context.Context, user *models.User, password string) (string, error) {
	if _, ok := f.users[user.Username]; ok {
		return "", models.ErrDuplicateUser
	}
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password must be at least 8 characters", models.ErrPasswordPolicy)
	}
	f.nextID++
	user.ID = fmt.Sprintf("uuid-%d", f.nextID)
	if user.Quota == "" {
		user.Quota = models.QuotaDefault
	}
	user.Enabled = true
	user.PasswordHash = password
	f.users[user.Username] = user
	return user.ID, nil
}

func (f *fakeDirectory) DeleteUser(_ context.Context, username string) error {
	if _, ok := f.users[username]; !ok {
		return models.ErrUserNotFound
	}
	delete(f.users, username)
	for _, members := range f.members {
		delete(members, username)
	}
	return nil
}

func (f *fakeDirectory) SearchUsers(_ context.Context, search string, limit, offset *int) ([]string, error) {
	var usernames []string
	for username := range f.users {
		if search == "" || strings.Contains(strings.ToLower(username), strings.ToLower(search)) {
			usernames = append(usernames, username)
		}
	}
	sort.Strings(usernames)

	start := 0
	if offset != nil {
		start = *offset
	}
	if start >= len(usernames) {
		return []string{}, nil
	}
	end := len(usernames)
	if limit != nil && start+*limit < end {
		end = start + *limit
	}
	return usernames[start:end], nil
}

func (f *fakeDirectory) setField(username string, set func(*models.User)) error {
	user, ok := f.users[username]
	if !ok {
		return models.ErrUserNotFound
	}
	set(user)
	return nil
}

func (f *fakeDirectory) SetDisplayName(_ context.Context, username, displayName string) error {
	return f.setField(username, func(u *models.User) { u.DisplayName = displayName })
}

func (f *fakeDirectory) SetEmail(_ context.Context, username, email string) error {
	return f.setField(username, func(u *models.User) { u.Email = email })
}

func (f *fakeDirectory) SetPassword(_ context.Context, username, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", models.ErrPasswordPolicy)
	}
	return f.setField(username, func(u *models.User) { u.PasswordHash = password })
}

func (f *fakeDirectory) SetQuota(_ context.Context, username, quotaValue string) error {
	return f.setField(username, func(u *models.User) { u.Quota = quotaValue })
}

func (f *fakeDirectory) SetEnabled(_ context.Context, username string, enabled bool) error {
	return f.setField(username, func(u *models.User) { u.Enabled = enabled })
}

func (f *fakeDirectory) SetTwoFactor(_ context.Context, username string, enabled bool) error {
	return f.setField(username, func(u *models.User) { u.TwoFactorEnabled = enabled })
}

func (f *fakeDirectory) ValidateCredentials(_ context.Context, username, password string) (*models.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	if user.PasswordHash != password {
		return nil, models.ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, models.ErrUserDisabled
	}
	return user, nil
}

func (f *fakeDirectory) GetGroup(_ context.Context, name string) (*models.Group, error) {
	if !f.groups[name] {
		return nil, models.ErrGroupNotFound
	}
	return &models.Group{ID: name, Name: name}, nil
}

func (f *fakeDirectory) GroupExists(_ context.Context, name string) (bool, error) {
	return f.groups[name], nil
}

func (f *fakeDirectory) CreateGroup(_ context.Context, group *models.Group) (string, error) {
	if f.groups[group.Name] {
		return "", models.ErrDuplicateGroup
	}
	f.addGroup(group.Name)
	return group.Name, nil
}

func (f *fakeDirectory) DeleteGroup(_ context.Context, name string) error {
	if !f.groups[name] {
		return models.ErrGroupNotFound
	}
	delete(f.groups, name)
	delete(f.members, name)
	return nil
}

func (f *fakeDirectory) ListGroups(_ context.Context, search string, limit, offset *int) ([]string, error) {
	var names []string
	for name := range f.groups {
		if search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeDirectory) AddUserToGroup(_ context.Context, username, groupName string) error {
	if _, ok := f.users[username]; !ok {
		return models.ErrUserNotFound
	}
	if !f.groups[groupName] {
		return models.ErrGroupNotFound
	}
	f.members[groupName][username] = true
	return nil
}

func (f *fakeDirectory) RemoveUserFromGroup(_ context.Context, username, groupName string) error {
	if _, ok := f.users[username]; !ok {
		return models.ErrUserNotFound
	}
	if !f.groups[groupName] {
		return models.ErrGroupNotFound
	}
	delete(f.members[groupName], username)
	return nil
}

func (f *fakeDirectory) IsInGroup(_ context.Context, username, groupName string) (bool, error) {
	return f.members[groupName][username], nil
}

func (f *fakeDirectory) GetUserGroupNames(_ context.Context, username string) ([]string, error) {
	var names []string
	for group, members := range f.members {
		if members[username] {
			names = append(names, group)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeDirectory) GetGroupMembers(_ context.Context, groupName string) ([]*models.User, error) {
	members, ok := f.members[groupName]
	if !ok {
		return nil, models.ErrGroupNotFound
	}
	var usernames []string
	for username := range members {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)
	users := make([]*models.User, len(usernames))
	for i, username := range usernames {
		users[i] = f.users[username]
	}
	return users, nil
}

func (f *fakeDirectory) DisplayNamesInGroup(_ context.Context, groupName, search string) ([]store.UserDisplay, error) {
	members, ok := f.members[groupName]
	if !ok {
		return nil, models.ErrGroupNotFound
	}
	var usernames []string
	for username := range members {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	var result []store.UserDisplay
	for _, username := range usernames {
		user := f.users[username]
		display := user.GetDisplayName()
		if search == "" ||
			strings.Contains(strings.ToLower(display), strings.ToLower(search)) {
			result = append(result, store.UserDisplay{Username: username, DisplayName: display})
		}
	}
	return result, nil
}

// fakeDelegation is an in-memory sub-admin registry.
type fakeDelegation struct {
	assignments map[string]map[string]bool // username -> set of group names
	createErr   error
	deleteErr   error
}

func newFakeDelegation() *fakeDelegation {
	return &fakeDelegation{assignments: map[string]map[string]bool{}}
}

func (f *fakeDelegation) grant(username, groupName string) {
	if f.assignments[username] == nil {
		f.assignments[username] = map[string]bool{}
	}
	f.assignments[username][groupName] = true
}

func (f *fakeDelegation) CreateSubAdmin(_ context.Context, username, groupName string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.grant(username, groupName)
	return nil
}

func (f *fakeDelegation) DeleteSubAdmin(_ context.Context, username, groupName string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if !f.assignments[username][groupName] {
		return models.ErrNotSubAdmin
	}
	delete(f.assignments[username], groupName)
	return nil
}

func (f *fakeDelegation) IsSubAdminOfGroup(_ context.Context, username, groupName string) (bool, error) {
	return f.assignments[username][groupName], nil
}

func (f *fakeDelegation) HasSubAdminAssignments(_ context.Context, username string) (bool, error) {
	return len(f.assignments[username]) > 0, nil
}

func (f *fakeDelegation) GetSubAdminGroups(_ context.Context, username string) ([]string, error) {
	groups := []string{}
	for group := range f.assignments[username] {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups, nil
}

func (f *fakeDelegation) GetGroupSubAdmins(_ context.Context, groupName string) ([]string, error) {
	users := []string{}
	for username, groups := range f.assignments {
		if groups[groupName] {
			users = append(users, username)
		}
	}
	sort.Strings(users)
	return users, nil
}

// fakeStorageResolver returns fixed storage figures.
type fakeStorageResolver struct {
	info quota.Info
	err  error
}

func (f *fakeStorageResolver) ResolveStorage(_ context.Context, _ string) (quota.Info, error) {
	if f.err != nil {
		return quota.Info{}, f.err
	}
	return f.info, nil
}
