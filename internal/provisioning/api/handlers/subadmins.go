package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/directory/models"
	"github.com/driftfs/driftfs/pkg/directory/store"
)

// SubAdminHandler handles the /users/{userId}/subadmins endpoints. The
// router guards every route with the admin-only middleware, so handlers
// assume an admin caller.
type SubAdminHandler struct {
	users     store.UserStore
	groups    store.GroupStore
	subAdmins store.SubAdminStore
}

// NewSubAdminHandler creates a new SubAdminHandler.
func NewSubAdminHandler(users store.UserStore, groups store.GroupStore, subAdmins store.SubAdminStore) *SubAdminHandler {
	return &SubAdminHandler{users: users, groups: groups, subAdmins: subAdmins}
}

// SubAdminRequest is the request body for grant and revoke.
type SubAdminRequest struct {
	GroupID string `json:"groupid"`
}

// Add handles POST /users/{userId}/subadmins. Granting an existing
// assignment is a no-op success.
func (h *SubAdminHandler) Add(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")

	var req SubAdminRequest
	if !decodeJSONBody(w, r, &req, 103) {
		return
	}

	userExists, err := h.users.UserExists(r.Context(), target)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check user")
		return
	}
	if !userExists {
		writeError(w, 101, "User does not exist")
		return
	}

	groupExists, err := h.groups.GroupExists(r.Context(), req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if !groupExists {
		writeError(w, 102, "Group:"+req.GroupID+" does not exist")
		return
	}

	if models.IsAdminGroup(req.GroupID) {
		writeError(w, 103, "Cannot create subadmins for admin group")
		return
	}

	assigned, err := h.subAdmins.IsSubAdminOfGroup(r.Context(), target, req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check assignment")
		return
	}
	if assigned {
		writeOK(w, nil)
		return
	}

	if err := h.subAdmins.CreateSubAdmin(r.Context(), target, req.GroupID); err != nil {
		writeError(w, 103, "Unknown error occurred")
		return
	}
	logger.Info("subadmin granted", "username", target, "group", req.GroupID)

	writeOK(w, nil)
}

// Remove handles DELETE /users/{userId}/subadmins.
func (h *SubAdminHandler) Remove(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")

	var req SubAdminRequest
	if !decodeJSONBody(w, r, &req, 103) {
		return
	}

	userExists, err := h.users.UserExists(r.Context(), target)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check user")
		return
	}
	if !userExists {
		writeError(w, 101, "User does not exist")
		return
	}

	groupExists, err := h.groups.GroupExists(r.Context(), req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check group")
		return
	}
	if !groupExists {
		writeError(w, 101, "Group does not exist")
		return
	}

	assigned, err := h.subAdmins.IsSubAdminOfGroup(r.Context(), target, req.GroupID)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check assignment")
		return
	}
	if !assigned {
		writeError(w, 102, "User is not a subadmin of this group")
		return
	}

	if err := h.subAdmins.DeleteSubAdmin(r.Context(), target, req.GroupID); err != nil {
		writeError(w, 103, "Unknown error occurred")
		return
	}
	logger.Info("subadmin revoked", "username", target, "group", req.GroupID)

	writeOK(w, nil)
}

// Groups handles GET /users/{userId}/subadmins, listing the groups the
// user sub-administers. An empty assignment list is reported as an error,
// matching long-standing client expectations.
func (h *SubAdminHandler) Groups(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")

	userExists, err := h.users.UserExists(r.Context(), target)
	if err != nil {
		writeError(w, StatusServerError, "Failed to check user")
		return
	}
	if !userExists {
		writeError(w, 101, "User does not exist")
		return
	}

	groups, err := h.subAdmins.GetSubAdminGroups(r.Context(), target)
	if err != nil {
		writeError(w, StatusServerError, "Failed to get subadmin groups")
		return
	}
	if len(groups) == 0 {
		writeError(w, 102, "Unknown error occurred")
		return
	}

	writeOK(w, groups)
}
