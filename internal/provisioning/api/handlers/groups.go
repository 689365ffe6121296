package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/directory/authz"
	"github.com/driftfs/driftfs/pkg/directory/models"
	"github.com/driftfs/driftfs/pkg/directory/store"
)

// GroupHandler handles the /groups provisioning endpoints.
type GroupHandler struct {
	groups    store.GroupStore
	subAdmins store.SubAdminStore
	resolver  authz.RoleResolver
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups store.GroupStore, subAdmins store.SubAdminStore, resolver authz.RoleResolver) *GroupHandler {
	return &GroupHandler{groups: groups, subAdmins: subAdmins, resolver: resolver}
}

// CreateGroupRequest is the request body for POST /groups.
type CreateGroupRequest struct {
	GroupID string `json:"groupid"`
}

// List handles GET /groups.
//
// Admins see every group matching the search; sub-admins see only the
// groups they administer.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
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

	var groups []string
	if admin {
		groups, err = h.groups.ListGroups(r.Context(), search, limit, offset)
		if err != nil {
			writeError(w, StatusServerError, "Failed to list groups")
			return
		}
	} else {
		subAdminGroups, serr := h.resolver.SubAdminGroups(r.Context(), caller)
		if serr != nil {
			writeError(w, StatusServerError, "Failed to resolve caller role")
			return
		}
		if len(subAdminGroups) == 0 {
			writeError(w, StatusUnauthorized, "Authentication required")
			return
		}
		groups = []string{}
		for _, group := range subAdminGroups {
			if search == "" || strings.Contains(strings.ToLower(group), strings.ToLower(search)) {
				groups = append(groups, group)
			}
		}
	}

	writeOK(w, map[string]interface{}{"groups": groups})
}

// Create handles POST /groups (admin-only route).
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decodeJSONBody(w, r, &req, 101) {
		return
	}
	if req.GroupID == "" {
		writeError(w, 101, "Invalid group name")
		return
	}

	exists, err := h.groups.GroupExists(r.Context(), req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if exists {
		writeError(w, 102, "")
		return
	}

	if _, err := h.groups.CreateGroup(r.Context(), &models.Group{Name: req.GroupID}); err != nil {
		if errors.Is(err, models.ErrDuplicateGroup) {
			writeError(w, 102, "")
			return
		}
		writeError(w, 103, "")
		return
	}
	logger.Info("group created", "group", req.GroupID)

	writeOK(w, nil)
}

// Members handles GET /groups/{groupId}, listing the members of a group.
// The caller must be an admin or a sub-admin of the group.
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	groupID := chi.URLParam(r, "groupId")

	canManage, err := h.resolver.CanManageGroup(r.Context(), caller, groupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to resolve caller role")
		return
	}
	if !canManage {
		writeError(w, StatusUnauthorized, "Authentication required")
		return
	}

	members, err := h.groups.GetGroupMembers(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, models.ErrGroupNotFound) {
			writeError(w, StatusNotFound, "The requested group could not be found")
			return
		}
		writeError(w, StatusServerError, "Failed to get group members")
		return
	}

	users := make([]string, len(members))
	for i, m := range members {
		users[i] = m.Username
	}
	writeOK(w, map[string]interface{}{"users": users})
}

// Delete handles DELETE /groups/{groupId} (admin-only route). The admin
// group is never deletable.
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	exists, err := h.groups.GroupExists(r.Context(), groupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if !exists {
		writeError(w, 101, "")
		return
	}
	if models.IsAdminGroup(groupID) {
		writeError(w, 102, "")
		return
	}

	if err := h.groups.DeleteGroup(r.Context(), groupID); err != nil {
		writeError(w, 103, "")
		return
	}
	logger.Info("group deleted", "group", groupID)

	writeOK(w, nil)
}

// SubAdmins handles GET /groups/{groupId}/subadmins (admin-only route),
// listing the users who sub-administer the group.
func (h *GroupHandler) SubAdmins(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	exists, err := h.groups.GroupExists(r.Context(), groupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if !exists {
		writeError(w, 101, "Group does not exist")
		return
	}

	users, err := h.subAdmins.GetGroupSubAdmins(r.Context(), groupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to get subadmins")
		return
	}

	writeOK(w, users)
}
