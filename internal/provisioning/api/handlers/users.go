package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/driftfs/driftfs/internal/bytesize"
	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/directory/authz"
	"github.com/driftfs/driftfs/pkg/directory/models"
	"github.com/driftfs/driftfs/pkg/directory/quota"
	"github.com/driftfs/driftfs/pkg/directory/store"
	"github.com/driftfs/driftfs/pkg/directory/twofactor"
)

var validate = validator.New()

// Directory is the slice of the store the user handler operates on.
type Directory interface {
	store.UserStore
	store.GroupStore
}

// UserHandler handles the /users provisioning endpoints.
type UserHandler struct {
	store     Directory
	resolver  authz.RoleResolver
	storage   quota.Resolver
	twoFactor twofactor.Manager
}

// NewUserHandler creates a new UserHandler. The storage resolver may be nil,
// in which case user detail responses omit filesystem quota figures.
func NewUserHandler(s Directory, resolver authz.RoleResolver, storage quota.Resolver, twoFactor twofactor.Manager) *UserHandler {
	return &UserHandler{store: s, resolver: resolver, storage: storage, twoFactor: twoFactor}
}

// CreateUserRequest is the request body for POST /users.
//
// Groups distinguishes "absent" from "empty": a nil slice means no group
// list was supplied, which is only acceptable for full admins.
type CreateUserRequest struct {
	UserID   string   `json:"userid"`
	Password string   `json:"password"`
	Groups   []string `json:"groups,omitempty"`
}

// EditUserRequest is the request body for PUT /users/{userId}. Value is kept
// raw because its type depends on the key: strings for most fields, a
// boolean for two_factor_auth_enabled.
type EditUserRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// GroupMembershipRequest is the request body for the membership endpoints.
type GroupMembershipRequest struct {
	GroupID string `json:"groupid"`
}

// List handles GET /users.
//
// Admins search the whole directory with backend paging. Sub-admins see the
// concatenation of display-name matches across the groups they administer,
// sliced after concatenation. A user appearing in several administered
// groups is listed once per group.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	search := r.URL.Query().Get("search")
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")

	admin, err := h.resolver.IsAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}

	var users []string
	switch {
	case admin:
		users, err = h.store.SearchUsers(r.Context(), search, limit, offset)
		if err != nil {
			writeError(w, StatusServerError, "Failed to search users")
			return
		}

	default:
		subAdminGroups, rerr := h.resolver.SubAdminGroups(r.Context(), caller)
		if rerr != nil {
			writeError(w, StatusServerError, "Failed to resolve caller role")
			return
		}
		if len(subAdminGroups) == 0 {
			writeError(w, StatusUnauthorized, "Authentication required")
			return
		}

		for _, group := range subAdminGroups {
			matches, merr := h.store.DisplayNamesInGroup(r.Context(), group, search)
			if merr != nil {
				writeError(w, StatusServerError, "Failed to search users")
				return
			}
			for _, m := range matches {
				users = append(users, m.Username)
			}
		}
		users = sliceUsers(users, limit, offset)
	}

	writeOK(w, map[string]interface{}{"users": users})
}

// sliceUsers applies limit/offset to an already-assembled result set.
// A nil offset defaults to zero. A nil or negative limit means the rest of
// the slice, the same unbounded behavior the backend search gives admins.
func sliceUsers(users []string, limit, offset *int) []string {
	start := 0
	if offset != nil {
		start = *offset
	}
	if start < 0 {
		start = 0
	}
	if start >= len(users) {
		return []string{}
	}

	end := len(users)
	if limit != nil && *limit >= 0 && start+*limit < end {
		end = start + *limit
	}
	return users[start:end]
}

// Create handles POST /users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateUserRequest
	if !decodeJSONBody(w, r, &req, 101) {
		return
	}

	admin, err := h.resolver.IsAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !admin {
		subAdmin, serr := h.resolver.IsSubAdmin(r.Context(), caller)
		if serr != nil {
			writeError(w, StatusServerError, "Failed to resolve caller role")
			return
		}
		if !subAdmin {
			writeError(w, StatusUnauthorized, "Authentication required")
			return
		}
	}

	exists, err := h.store.UserExists(r.Context(), req.UserID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check user")
		return
	}
	if exists {
		logger.Error("failed addUser attempt: user already exists", "username", req.UserID, "by", caller)
		writeError(w, 102, "User already exists")
		return
	}

	if req.Groups != nil {
		for _, group := range req.Groups {
			groupExists, gerr := h.store.GroupExists(r.Context(), group)
			if gerr != nil {
				writeError(w, StatusServerError, "Failed to check group")
				return
			}
			if !groupExists {
				writeError(w, 104, "group "+group+" does not exist")
				return
			}
			if !admin {
				canManage, merr := h.resolver.CanManageGroup(r.Context(), caller, group)
				if merr != nil {
					writeError(w, StatusServerError, "Failed to resolve caller role")
					return
				}
				if !canManage {
					writeError(w, 105, "insufficient privileges for group "+group)
					return
				}
			}
		}
	} else if !admin {
		writeError(w, 106, "no group specified (required for subadmins)")
		return
	}

	user := &models.User{Username: req.UserID}
	if _, err := h.store.CreateUser(r.Context(), user, req.Password); err != nil {
		logger.Error("failed addUser attempt", "username", req.UserID, "by", caller, "error", err)
		if errors.Is(err, models.ErrDuplicateUser) {
			writeError(w, 102, "User already exists")
			return
		}
		message := err.Error()
		if message == "" {
			message = "Bad request"
		}
		writeError(w, 101, message)
		return
	}
	logger.Info("user created", "username", req.UserID, "by", caller)

	for _, group := range req.Groups {
		if err := h.store.AddUserToGroup(r.Context(), req.UserID, group); err != nil {
			writeError(w, 101, err.Error())
			return
		}
		logger.Info("user added to group", "username", req.UserID, "group", group, "by", caller)
	}

	writeOK(w, nil)
}

// Get handles GET /users/{userId}.
//
// The enabled flag is only revealed to admins and sub-admins with access to
// the target; a plain self lookup omits it. Quota figures come from the
// filesystem resolver and degrade to the bare policy definition when the
// home cannot be inspected.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	target := chi.URLParam(r, "userId")
	user, err := h.store.GetUser(r.Context(), target)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			writeError(w, StatusNotFound, "The requested user could not be found")
			return
		}
		writeError(w, StatusServerError, "Failed to get user")
		return
	}

	data := map[string]interface{}{}

	accessible, err := h.resolver.IsUserAccessible(r.Context(), caller, user.Username)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if accessible {
		if user.Enabled {
			data["enabled"] = "true"
		} else {
			data["enabled"] = "false"
		}
	} else if !user.IsSameUser(caller) {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	quotaData := map[string]interface{}{}
	if h.storage != nil && user.Home != "" {
		if info, qerr := h.storage.ResolveStorage(r.Context(), user.Home); qerr == nil {
			quotaData["free"] = info.Free
			quotaData["used"] = info.Used
			quotaData["total"] = info.Total
			quotaData["relative"] = info.Relative
		}
	}
	quotaData["definition"] = user.Quota

	data["quota"] = quotaData
	data["email"] = user.Email
	data["displayname"] = user.GetDisplayName()
	data["home"] = user.Home
	if user.TwoFactorEnabled {
		data["two_factor_auth_enabled"] = "true"
	} else {
		data["two_factor_auth_enabled"] = "false"
	}

	writeOK(w, data)
}

// Edit handles PUT /users/{userId}. A single field is edited per call; the
// permitted field set depends on who the caller is relative to the target.
func (h *UserHandler) Edit(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	target := chi.URLParam(r, "userId")
	user, err := h.store.GetUser(r.Context(), target)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			writeError(w, StatusNotFound, "The requested user could not be found")
			return
		}
		writeError(w, StatusServerError, "Failed to get user")
		return
	}

	var req EditUserRequest
	if !decodeJSONBody(w, r, &req, 103) {
		return
	}

	permitted, err := h.permittedEditFields(r, caller, user)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if permitted == nil {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}
	if !permitted[req.Key] {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	switch req.Key {
	case "display", "displayname":
		value, verr := stringValue(req.Value)
		if verr != nil {
			writeError(w, 103, "Invalid value")
			return
		}
		err = h.store.SetDisplayName(r.Context(), user.Username, value)

	case "quota":
		value, verr := stringValue(req.Value)
		if verr != nil {
			writeError(w, 103, "Invalid value")
			return
		}
		canonical, qerr := canonicalQuota(value)
		if qerr != nil {
			writeError(w, 103, "Invalid quota value "+value)
			return
		}
		err = h.store.SetQuota(r.Context(), user.Username, canonical)

	case "password":
		value, verr := stringValue(req.Value)
		if verr != nil {
			writeError(w, 103, "Invalid value")
			return
		}
		if err = h.store.SetPassword(r.Context(), user.Username, value); err != nil {
			if errors.Is(err, models.ErrPasswordPolicy) {
				writeError(w, StatusPasswordPolicy, err.Error())
				return
			}
		}

	case "two_factor_auth_enabled":
		var enabled bool
		if uerr := json.Unmarshal(req.Value, &enabled); uerr != nil {
			writeError(w, 103, "Invalid value")
			return
		}
		if enabled {
			err = h.twoFactor.Enable(r.Context(), user.Username)
		} else {
			err = h.twoFactor.Disable(r.Context(), user.Username)
		}

	case "email":
		value, verr := stringValue(req.Value)
		if verr != nil {
			writeError(w, 103, "Invalid value")
			return
		}
		if validate.Var(value, "required,email") != nil {
			writeError(w, 102, "")
			return
		}
		err = h.store.SetEmail(r.Context(), user.Username, value)

	default:
		writeError(w, 103, "")
		return
	}

	if err != nil {
		writeError(w, StatusServerError, "Failed to update user")
		return
	}

	writeOK(w, nil)
}

// permittedEditFields returns the set of fields the caller may edit on the
// target, or nil when the caller has no rights over the target at all.
func (h *UserHandler) permittedEditFields(r *http.Request, caller string, target *models.User) (map[string]bool, error) {
	self := target.IsSameUser(caller)

	admin, err := h.resolver.IsAdmin(r.Context(), caller)
	if err != nil {
		return nil, err
	}

	if self {
		permitted := map[string]bool{
			"display":                 true,
			"displayname":             true,
			"email":                   true,
			"password":                true,
			"two_factor_auth_enabled": true,
		}
		// Admins may edit their own quota
		if admin {
			permitted["quota"] = true
		}
		return permitted, nil
	}

	accessible := admin
	if !accessible {
		accessible, err = h.resolver.IsUserAccessible(r.Context(), caller, target.Username)
		if err != nil {
			return nil, err
		}
	}
	if !accessible {
		return nil, nil
	}

	return map[string]bool{
		"display":                 true,
		"displayname":             true,
		"quota":                   true,
		"password":                true,
		"email":                   true,
		"two_factor_auth_enabled": true,
	}, nil
}

// stringValue unmarshals a raw edit value as a JSON string.
func stringValue(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// canonicalQuota normalizes a quota value for storage. The policy words
// "none" and "default" pass through; a bare number is a raw byte count;
// anything else must parse as a human-readable size. Sizes are re-rendered
// canonically so "5000000" and "5MB" store the same string.
func canonicalQuota(value string) (string, error) {
	if value == models.QuotaNone || value == models.QuotaDefault {
		return value, nil
	}
	size, err := bytesize.Parse(value)
	if err != nil {
		return "", err
	}
	return size.String(), nil
}

// Delete handles DELETE /users/{userId}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := h.requireManageableTarget(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteUser(r.Context(), target.Username); err != nil {
		writeError(w, 101, "")
		return
	}
	logger.Info("user deleted", "username", target.Username, "by", caller)

	writeOK(w, nil)
}

// Enable handles PUT /users/{userId}/enable.
func (h *UserHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable handles PUT /users/{userId}/disable.
func (h *UserHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *UserHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	caller, target, ok := h.requireManageableTarget(w, r)
	if !ok {
		return
	}

	if err := h.store.SetEnabled(r.Context(), target.Username, enabled); err != nil {
		writeError(w, StatusServerError, "Failed to update user")
		return
	}
	logger.Info("user enabled state changed", "username", target.Username, "enabled", enabled, "by", caller)

	writeOK(w, nil)
}

// requireManageableTarget runs the shared guard for delete/enable/disable:
// the caller must be admin or sub-admin, the target must exist and differ
// from the caller, and the caller must have access to the target. On
// failure the response has already been written.
func (h *UserHandler) requireManageableTarget(w http.ResponseWriter, r *http.Request) (string, *models.User, bool) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return "", nil, false
	}

	subAdmin, err := h.resolver.IsSubAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return "", nil, false
	}
	if !subAdmin {
		writeError(w, StatusUnauthorized, "Authentication required")
		return "", nil, false
	}

	target := chi.URLParam(r, "userId")
	user, err := h.store.GetUser(r.Context(), target)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			writeError(w, 101, "")
			return "", nil, false
		}
		writeError(w, StatusServerError, "Failed to get user")
		return "", nil, false
	}
	if user.IsSameUser(caller) {
		writeError(w, 101, "")
		return "", nil, false
	}

	accessible, err := h.resolver.IsUserAccessible(r.Context(), caller, user.Username)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return "", nil, false
	}
	if !accessible {
		writeError(w, StatusUnauthorized, "Authentication required")
		return "", nil, false
	}

	return caller, user, true
}

// Groups handles GET /users/{userId}/groups.
//
// Admins and the user see every group. A sub-admin sees only the
// intersection of the target's groups with the groups they administer.
func (h *UserHandler) Groups(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	target := chi.URLParam(r, "userId")
	user, err := h.store.GetUser(r.Context(), target)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			writeError(w, StatusNotFound, "The requested user could not be found")
			return
		}
		writeError(w, StatusServerError, "Failed to get user")
		return
	}

	admin, err := h.resolver.IsAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}

	if user.IsSameUser(caller) || admin {
		groups, gerr := h.store.GetUserGroupNames(r.Context(), user.Username)
		if gerr != nil {
			writeError(w, StatusServerError, "Failed to get groups")
			return
		}
		writeOK(w, map[string]interface{}{"groups": groups})
		return
	}

	accessible, err := h.resolver.IsUserAccessible(r.Context(), caller, user.Username)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !accessible {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	subAdminGroups, err := h.resolver.SubAdminGroups(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	targetGroups, err := h.store.GetUserGroupNames(r.Context(), user.Username)
	if err != nil {
		writeError(w, StatusServerError, "Failed to get groups")
		return
	}

	groups := intersect(subAdminGroups, targetGroups)
	writeOK(w, map[string]interface{}{"groups": groups})
}

// intersect returns the elements of a that also appear in b, preserving
// the order of a.
func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	result := []string{}
	for _, s := range a {
		if set[s] {
			result = append(result, s)
		}
	}
	return result
}

// AddToGroup handles POST /users/{userId}/groups. Only full admins may add
// users to groups.
func (h *UserHandler) AddToGroup(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	subAdmin, err := h.resolver.IsSubAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !subAdmin {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	var req GroupMembershipRequest
	if !decodeJSONBody(w, r, &req, 101) {
		return
	}
	if req.GroupID == "" {
		writeError(w, 101, "")
		return
	}

	groupExists, err := h.store.GroupExists(r.Context(), req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if !groupExists {
		writeError(w, 102, "")
		return
	}

	admin, err := h.resolver.IsAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !admin {
		writeError(w, 104, "")
		return
	}

	target := chi.URLParam(r, "userId")
	userExists, err := h.store.UserExists(r.Context(), target)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check user")
		return
	}
	if !userExists {
		writeError(w, 103, "")
		return
	}

	if err := h.store.AddUserToGroup(r.Context(), target, req.GroupID); err != nil {
		writeError(w, StatusServerError, "Failed to add user to group")
		return
	}
	logger.Info("user added to group", "username", target, "group", req.GroupID, "by", caller)

	writeOK(w, nil)
}

// RemoveFromGroup handles DELETE /users/{userId}/groups.
//
// Admins cannot remove themselves from the admin group, and sub-admins
// cannot remove themselves from a group they administer; both would strip
// the caller's own management rights mid-flight.
func (h *UserHandler) RemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	subAdmin, err := h.resolver.IsSubAdmin(r.Context(), caller)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !subAdmin {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	var req GroupMembershipRequest
	if !decodeJSONBody(w, r, &req, 101) {
		return
	}
	if req.GroupID == "" {
		writeError(w, 101, "")
		return
	}

	groupExists, err := h.store.GroupExists(r.Context(), req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if !groupExists {
		writeError(w, 102, "")
		return
	}

	canManage, err := h.resolver.CanManageGroup(r.Context(), caller, req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !canManage {
		writeError(w, 104, "")
		return
	}

	target := chi.URLParam(r, "userId")
	userExists, err := h.store.UserExists(r.Context(), target)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check user")
		return
	}
	if !userExists {
		writeError(w, 103, "")
		return
	}

	if target == caller {
		admin, aerr := h.resolver.IsAdmin(r.Context(), caller)
		if aerr != nil {
			writeError(w, StatusServerError, "Failed to resolve caller role")
			return
		}
		if admin {
			// Exact match: group names are case-sensitive identifiers, only
			// delegation treats the admin name as case-insensitively reserved
			if req.GroupID == models.AdminGroup {
				writeError(w, 105, "Cannot remove yourself from the admin group")
				return
			}
		} else {
			subAdminOf, serr := h.resolver.SubAdminGroups(r.Context(), caller)
			if serr != nil {
				writeError(w, StatusServerError, "Failed to resolve caller role")
				return
			}
			for _, group := range subAdminOf {
				if group == req.GroupID {
					writeError(w, 105, "Cannot remove yourself from this group as you are a SubAdmin")
					return
				}
			}
		}
	}

	if err := h.store.RemoveUserFromGroup(r.Context(), target, req.GroupID); err != nil {
		writeError(w, StatusServerError, "Failed to remove user from group")
		return
	}
	logger.Info("user removed from group", "username", target, "group", req.GroupID, "by", caller)

	writeOK(w, nil)
}
