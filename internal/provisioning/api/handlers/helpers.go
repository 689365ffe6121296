package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/driftfs/driftfs/internal/provisioning/api/middleware"
)

// jsonDecode decodes a JSON request body into the provided pointer.
func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails, in which case a
// failure envelope with the given endpoint code is written automatically.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any, failCode int) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, failCode, "Invalid request body")
		return false
	}
	return true
}

// principal returns the authenticated caller's username from the request
// context. Returns false when the request carries no claims, which means
// the route was reached without the JWTAuth middleware.
func principal(r *http.Request) (string, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return "", false
	}
	return claims.Username, true
}

// queryInt parses an optional integer query parameter. Absent or
// non-numeric values yield nil, matching the backend's unbounded default.
func queryInt(r *http.Request, name string) *int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
