package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/internal/provisioning/api/auth"
	"github.com/driftfs/driftfs/internal/provisioning/api/middleware"
	"github.com/driftfs/driftfs/pkg/directory/authz"
	"github.com/driftfs/driftfs/pkg/directory/models"
	"github.com/driftfs/driftfs/pkg/directory/quota"
	"github.com/driftfs/driftfs/pkg/directory/twofactor"
)

// testEnv wires a UserHandler over in-memory fakes with the real role
// resolver, so authorization paths are exercised end to end.
type testEnv struct {
	handler    *UserHandler
	dir        *fakeDirectory
	delegation *fakeDelegation
}

func newTestEnv() *testEnv {
	dir := newFakeDirectory()
	delegation := newFakeDelegation()
	resolver := authz.NewResolver(dir, delegation)
	storage := &fakeStorageResolver{info: quota.Info{Free: 600, Used: 400, Total: 1000, Relative: 40}}
	return &testEnv{
		handler:    NewUserHandler(dir, resolver, storage, twofactor.NewStoreManager(dir)),
		dir:        dir,
		delegation: delegation,
	}
}

// seedStandard creates the fixture most tests share: an admin "root", a
// sub-admin "alice" over group "eng" containing "bob", and an unprivileged
// "carol" in "sales".
func (e *testEnv) seedStandard() {
	e.dir.addUser("root", models.AdminGroup)
	e.dir.addUser("alice", "eng")
	e.dir.addUser("bob", "eng")
	e.dir.addUser("carol", "sales")
	e.delegation.grant("alice", "eng")
}

func newRequest(t *testing.T, method, target, caller string, body interface{}) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	if caller != "" {
		claims := &auth.Claims{
			UserID:    "uuid-" + caller,
			Username:  caller,
			TokenType: auth.TokenTypeAccess,
		}
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	return req
}

// withUserParam injects the chi {userId} route parameter.
func withUserParam(r *http.Request, userID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userId", userID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// envelope mirrors the provisioning response for decoding in tests.
type envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, handler http.HandlerFunc, r *http.Request) envelope {
	t.Helper()

	rec := httptest.NewRecorder()
	handler(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected HTTP 200, got: %d", rec.Code)
	}

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response envelope: %v", err)
	}
	return env
}

func assertCode(t *testing.T, env envelope, want int) {
	t.Helper()
	if env.Meta.StatusCode != want {
		t.Fatalf("Expected statuscode %d, got: %d (message: %q)", want, env.Meta.StatusCode, env.Meta.Message)
	}
	wantStatus := "failure"
	if want == StatusOK {
		wantStatus = "ok"
	}
	if env.Meta.Status != wantStatus {
		t.Errorf("Expected status %q, got: %q", wantStatus, env.Meta.Status)
	}
}

func decodeUsers(t *testing.T, env envelope) []string {
	t.Helper()
	var data struct {
		Users []string `json:"users"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("Failed to decode users payload: %v", err)
	}
	return data.Users
}

func TestUserList_AdminSeesAll(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := newRequest(t, http.MethodGet, "/users", "root", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)

	users := decodeUsers(t, resp)
	want := []string{"alice", "bob", "carol", "root"}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Expected users %v, got: %v", want, users)
	}
}

func TestUserList_AdminSearchAndPaging(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := newRequest(t, http.MethodGet, "/users?limit=2&offset=1", "root", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)

	users := decodeUsers(t, resp)
	want := []string{"bob", "carol"}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Expected users %v, got: %v", want, users)
	}
}

func TestUserList_SubAdminScoped(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := newRequest(t, http.MethodGet, "/users", "alice", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)

	users := decodeUsers(t, resp)
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Expected users %v, got: %v", want, users)
	}
}

func TestUserList_SubAdminNegativeLimitUnbounded(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := newRequest(t, http.MethodGet, "/users?limit=-1", "alice", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)

	users := decodeUsers(t, resp)
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Expected users %v, got: %v", want, users)
	}
}

func TestUserList_SubAdminSearchMatchesDisplayNameOnly(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	env.dir.users["bob"].DisplayName = "Robert"

	req := newRequest(t, http.MethodGet, "/users?search=bob", "alice", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)
	if users := decodeUsers(t, resp); len(users) != 0 {
		t.Errorf("Expected no matches for username once a display name is set, got: %v", users)
	}

	req = newRequest(t, http.MethodGet, "/users?search=rob", "alice", nil)
	resp = doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)

	users := decodeUsers(t, resp)
	want := []string{"bob"}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Expected users %v, got: %v", want, users)
	}
}

func TestSliceUsers(t *testing.T) {
	all := []string{"a", "b", "c", "d"}
	intp := func(n int) *int { return &n }

	tests := []struct {
		name          string
		limit, offset *int
		want          []string
	}{
		{"no bounds", nil, nil, []string{"a", "b", "c", "d"}},
		{"limit only", intp(2), nil, []string{"a", "b"}},
		{"limit and offset", intp(2), intp(1), []string{"b", "c"}},
		{"offset past end", nil, intp(10), []string{}},
		{"negative limit unbounded", intp(-1), nil, []string{"a", "b", "c", "d"}},
		{"negative offset clamped", intp(2), intp(-3), []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sliceUsers(all, tt.limit, tt.offset)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got: %v", tt.want, got)
			}
		})
	}
}

func TestUserList_SubAdminDuplicateAcrossGroups(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	// bob is also in ops, which alice administers too
	env.dir.addGroup("ops")
	env.dir.members["ops"]["bob"] = true
	env.delegation.grant("alice", "ops")

	req := newRequest(t, http.MethodGet, "/users", "alice", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusOK)

	// Concatenation across groups, no dedup: eng then ops
	users := decodeUsers(t, resp)
	want := []string{"alice", "bob", "bob"}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Expected users %v, got: %v", want, users)
	}
}

func TestUserList_UnprivilegedRejected(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := newRequest(t, http.MethodGet, "/users", "carol", nil)
	resp := doRequest(t, env.handler.List, req)
	assertCode(t, resp, StatusUnauthorized)
}

func TestUserCreate_Admin(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery"}
	req := newRequest(t, http.MethodPost, "/users", "root", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, StatusOK)

	if _, ok := env.dir.users["dave"]; !ok {
		t.Error("Expected user dave to be created")
	}
}

func TestUserCreate_AdminWithGroups(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery", Groups: []string{"eng", "sales"}}
	req := newRequest(t, http.MethodPost, "/users", "root", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, StatusOK)

	if !env.dir.members["eng"]["dave"] || !env.dir.members["sales"]["dave"] {
		t.Error("Expected dave to be a member of eng and sales")
	}
}

func TestUserCreate_Duplicate(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "bob", Password: "correct-horse-battery"}
	req := newRequest(t, http.MethodPost, "/users", "root", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, 102)
	if resp.Meta.Message != "User already exists" {
		t.Errorf("Expected duplicate message, got: %q", resp.Meta.Message)
	}
}

func TestUserCreate_PasswordPolicy(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "short"}
	req := newRequest(t, http.MethodPost, "/users", "root", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, 101)

	if _, ok := env.dir.users["dave"]; ok {
		t.Error("Expected user dave not to be created")
	}
}

func TestUserCreate_SubAdminRequiresGroups(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery"}
	req := newRequest(t, http.MethodPost, "/users", "alice", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, 106)
}

func TestUserCreate_SubAdminForeignGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery", Groups: []string{"sales"}}
	req := newRequest(t, http.MethodPost, "/users", "alice", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, 105)

	if _, ok := env.dir.users["dave"]; ok {
		t.Error("Expected user dave not to be created")
	}
}

func TestUserCreate_SubAdminOwnGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery", Groups: []string{"eng"}}
	req := newRequest(t, http.MethodPost, "/users", "alice", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, StatusOK)

	if !env.dir.members["eng"]["dave"] {
		t.Error("Expected dave to be a member of eng")
	}
}

func TestUserCreate_MissingGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery", Groups: []string{"nope"}}
	req := newRequest(t, http.MethodPost, "/users", "root", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, 104)
}

func TestUserCreate_UnprivilegedMutatesNothing(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := CreateUserRequest{UserID: "dave", Password: "correct-horse-battery"}
	req := newRequest(t, http.MethodPost, "/users", "carol", body)
	resp := doRequest(t, env.handler.Create, req)
	assertCode(t, resp, StatusUnauthorized)

	if _, ok := env.dir.users["dave"]; ok {
		t.Error("Expected no user to be created by unprivileged caller")
	}
}

func TestUserGet_NotFound(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodGet, "/users/ghost", "root", nil), "ghost")
	resp := doRequest(t, env.handler.Get, req)
	assertCode(t, resp, StatusNotFound)
	if resp.Meta.Message != "The requested user could not be found" {
		t.Errorf("Expected not-found message, got: %q", resp.Meta.Message)
	}
}

func TestUserGet_AdminSeesEnabledFlag(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	env.dir.users["bob"].Email = "bob@example.com"
	env.dir.users["bob"].Quota = "5MB"

	req := withUserParam(newRequest(t, http.MethodGet, "/users/bob", "root", nil), "bob")
	resp := doRequest(t, env.handler.Get, req)
	assertCode(t, resp, StatusOK)

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("Failed to decode user payload: %v", err)
	}

	if data["enabled"] != "true" {
		t.Errorf("Expected enabled \"true\", got: %v", data["enabled"])
	}
	if data["email"] != "bob@example.com" {
		t.Errorf("Expected email, got: %v", data["email"])
	}
	if data["displayname"] != "bob" {
		t.Errorf("Expected displayname fallback to username, got: %v", data["displayname"])
	}
	if data["two_factor_auth_enabled"] != "false" {
		t.Errorf("Expected two_factor_auth_enabled \"false\", got: %v", data["two_factor_auth_enabled"])
	}

	quotaData, ok := data["quota"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected quota object, got: %v", data["quota"])
	}
	if quotaData["definition"] != "5MB" {
		t.Errorf("Expected quota definition 5MB, got: %v", quotaData["definition"])
	}
	if quotaData["total"] != float64(1000) {
		t.Errorf("Expected quota total 1000, got: %v", quotaData["total"])
	}
	if quotaData["relative"] != float64(40) {
		t.Errorf("Expected quota relative 40, got: %v", quotaData["relative"])
	}
}

func TestUserGet_SelfOmitsEnabledFlag(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodGet, "/users/carol", "carol", nil), "carol")
	resp := doRequest(t, env.handler.Get, req)
	assertCode(t, resp, StatusOK)

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("Failed to decode user payload: %v", err)
	}
	if _, present := data["enabled"]; present {
		t.Error("Expected enabled flag to be omitted on plain self lookup")
	}
}

func TestUserGet_InaccessibleTarget(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodGet, "/users/carol", "alice", nil), "carol")
	resp := doRequest(t, env.handler.Get, req)
	assertCode(t, resp, StatusUnauthorized)
}

func TestUserGet_StorageFailureDegradesToDefinition(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	env.handler.storage = &fakeStorageResolver{err: context.DeadlineExceeded}

	req := withUserParam(newRequest(t, http.MethodGet, "/users/bob", "root", nil), "bob")
	resp := doRequest(t, env.handler.Get, req)
	assertCode(t, resp, StatusOK)

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("Failed to decode user payload: %v", err)
	}
	quotaData, ok := data["quota"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected quota object, got: %v", data["quota"])
	}
	if _, present := quotaData["total"]; present {
		t.Error("Expected filesystem figures to be omitted when storage resolution fails")
	}
	if quotaData["definition"] != models.QuotaDefault {
		t.Errorf("Expected quota definition %q, got: %v", models.QuotaDefault, quotaData["definition"])
	}
}

func editRequest(t *testing.T, caller, target, key string, value interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("Failed to marshal edit value: %v", err)
	}
	body := EditUserRequest{Key: key, Value: raw}
	return withUserParam(newRequest(t, http.MethodPut, "/users/"+target, caller, body), target)
}

func TestUserEdit_SelfDisplayName(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "carol", "carol", "displayname", "Carol D."))
	assertCode(t, resp, StatusOK)

	if env.dir.users["carol"].DisplayName != "Carol D." {
		t.Errorf("Expected display name to be updated, got: %q", env.dir.users["carol"].DisplayName)
	}
}

func TestUserEdit_SelfQuotaRejected(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "carol", "carol", "quota", "10GB"))
	assertCode(t, resp, StatusUnauthorized)

	if env.dir.users["carol"].Quota != models.QuotaDefault {
		t.Errorf("Expected quota unchanged, got: %q", env.dir.users["carol"].Quota)
	}
}

func TestUserEdit_AdminOwnQuota(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "root", "root", "quota", "10GB"))
	assertCode(t, resp, StatusOK)

	if env.dir.users["root"].Quota != "10GB" {
		t.Errorf("Expected quota 10GB, got: %q", env.dir.users["root"].Quota)
	}
}

func TestUserEdit_QuotaCanonicalization(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"none", "none"},
		{"default", "default"},
		{"10", "10B"},
		{"5MB", "5MB"},
		{"5000000", "5MB"},
		{"1.5GB", "1.5GB"},
	}

	for _, tt := range tests {
		env := newTestEnv()
		env.seedStandard()

		resp := doRequest(t, env.handler.Edit, editRequest(t, "root", "bob", "quota", tt.value))
		assertCode(t, resp, StatusOK)

		if got := env.dir.users["bob"].Quota; got != tt.want {
			t.Errorf("quota %q: expected stored value %q, got: %q", tt.value, tt.want, got)
		}
	}
}

func TestUserEdit_InvalidQuota(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "root", "bob", "quota", "abc"))
	assertCode(t, resp, 103)
	if resp.Meta.Message != "Invalid quota value abc" {
		t.Errorf("Expected invalid quota message, got: %q", resp.Meta.Message)
	}
}

func TestUserEdit_PasswordPolicy(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "bob", "bob", "password", "short"))
	assertCode(t, resp, StatusPasswordPolicy)
	if resp.Meta.Message == "" {
		t.Error("Expected password policy message in response")
	}
}

func TestUserEdit_InvalidEmail(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "bob", "bob", "email", "not-an-email"))
	assertCode(t, resp, 102)
}

func TestUserEdit_TwoFactorToggle(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "bob", "bob", "two_factor_auth_enabled", true))
	assertCode(t, resp, StatusOK)
	if !env.dir.users["bob"].TwoFactorEnabled {
		t.Error("Expected two-factor to be enabled")
	}

	resp = doRequest(t, env.handler.Edit, editRequest(t, "bob", "bob", "two_factor_auth_enabled", false))
	assertCode(t, resp, StatusOK)
	if env.dir.users["bob"].TwoFactorEnabled {
		t.Error("Expected two-factor to be disabled")
	}
}

func TestUserEdit_UnknownKey(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "root", "bob", "shoesize", "42"))
	assertCode(t, resp, StatusUnauthorized)
}

func TestUserEdit_ForeignTargetRejected(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "carol", "bob", "displayname", "hax"))
	assertCode(t, resp, StatusUnauthorized)

	if env.dir.users["bob"].DisplayName != "" {
		t.Error("Expected display name unchanged")
	}
}

func TestUserEdit_SubAdminEditsManagedUserQuota(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "alice", "bob", "quota", "1GB"))
	assertCode(t, resp, StatusOK)

	if env.dir.users["bob"].Quota != "1GB" {
		t.Errorf("Expected quota 1GB, got: %q", env.dir.users["bob"].Quota)
	}
}

func TestUserEdit_MissingTarget(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	resp := doRequest(t, env.handler.Edit, editRequest(t, "root", "ghost", "displayname", "x"))
	assertCode(t, resp, StatusNotFound)
}

func TestUserDelete_Admin(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodDelete, "/users/bob", "root", nil), "bob")
	resp := doRequest(t, env.handler.Delete, req)
	assertCode(t, resp, StatusOK)

	if _, ok := env.dir.users["bob"]; ok {
		t.Error("Expected user bob to be deleted")
	}
}

func TestUserDelete_Self(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodDelete, "/users/root", "root", nil), "root")
	resp := doRequest(t, env.handler.Delete, req)
	assertCode(t, resp, 101)

	if _, ok := env.dir.users["root"]; !ok {
		t.Error("Expected user root to survive self-delete attempt")
	}
}

func TestUserDelete_Missing(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodDelete, "/users/ghost", "root", nil), "ghost")
	resp := doRequest(t, env.handler.Delete, req)
	assertCode(t, resp, 101)
}

func TestUserDelete_SubAdminOutOfScope(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodDelete, "/users/carol", "alice", nil), "carol")
	resp := doRequest(t, env.handler.Delete, req)
	assertCode(t, resp, StatusUnauthorized)

	if _, ok := env.dir.users["carol"]; !ok {
		t.Error("Expected user carol to survive")
	}
}

func TestUserDisableEnable(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodPut, "/users/bob/disable", "root", nil), "bob")
	resp := doRequest(t, env.handler.Disable, req)
	assertCode(t, resp, StatusOK)
	if env.dir.users["bob"].Enabled {
		t.Error("Expected bob to be disabled")
	}

	req = withUserParam(newRequest(t, http.MethodPut, "/users/bob/enable", "root", nil), "bob")
	resp = doRequest(t, env.handler.Enable, req)
	assertCode(t, resp, StatusOK)
	if !env.dir.users["bob"].Enabled {
		t.Error("Expected bob to be enabled")
	}
}

func TestUserDisable_Self(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodPut, "/users/root/disable", "root", nil), "root")
	resp := doRequest(t, env.handler.Disable, req)
	assertCode(t, resp, 101)

	if !env.dir.users["root"].Enabled {
		t.Error("Expected root to remain enabled")
	}
}

func TestUserGroups_Self(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodGet, "/users/bob/groups", "bob", nil), "bob")
	resp := doRequest(t, env.handler.Groups, req)
	assertCode(t, resp, StatusOK)

	var data struct {
		Groups []string `json:"groups"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("Failed to decode groups payload: %v", err)
	}
	if !reflect.DeepEqual(data.Groups, []string{"eng"}) {
		t.Errorf("Expected groups [eng], got: %v", data.Groups)
	}
}

func TestUserGroups_SubAdminSeesIntersection(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	// bob joins sales too, which alice does not administer
	env.dir.members["sales"]["bob"] = true

	req := withUserParam(newRequest(t, http.MethodGet, "/users/bob/groups", "alice", nil), "bob")
	resp := doRequest(t, env.handler.Groups, req)
	assertCode(t, resp, StatusOK)

	var data struct {
		Groups []string `json:"groups"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("Failed to decode groups payload: %v", err)
	}
	if !reflect.DeepEqual(data.Groups, []string{"eng"}) {
		t.Errorf("Expected intersection [eng], got: %v", data.Groups)
	}
}

func TestUserGroups_Inaccessible(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	req := withUserParam(newRequest(t, http.MethodGet, "/users/carol/groups", "alice", nil), "carol")
	resp := doRequest(t, env.handler.Groups, req)
	assertCode(t, resp, StatusUnauthorized)
}

func TestAddToGroup_Admin(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "sales"}
	req := withUserParam(newRequest(t, http.MethodPost, "/users/bob/groups", "root", body), "bob")
	resp := doRequest(t, env.handler.AddToGroup, req)
	assertCode(t, resp, StatusOK)

	if !env.dir.members["sales"]["bob"] {
		t.Error("Expected bob to be added to sales")
	}
}

func TestAddToGroup_EmptyGroupID(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{}
	req := withUserParam(newRequest(t, http.MethodPost, "/users/bob/groups", "root", body), "bob")
	resp := doRequest(t, env.handler.AddToGroup, req)
	assertCode(t, resp, 101)
}

func TestAddToGroup_MissingGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "nope"}
	req := withUserParam(newRequest(t, http.MethodPost, "/users/bob/groups", "root", body), "bob")
	resp := doRequest(t, env.handler.AddToGroup, req)
	assertCode(t, resp, 102)
}

func TestAddToGroup_SubAdminRejected(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "eng"}
	req := withUserParam(newRequest(t, http.MethodPost, "/users/carol/groups", "alice", body), "carol")
	resp := doRequest(t, env.handler.AddToGroup, req)
	assertCode(t, resp, 104)

	if env.dir.members["eng"]["carol"] {
		t.Error("Expected carol not to be added to eng")
	}
}

func TestAddToGroup_MissingUser(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "eng"}
	req := withUserParam(newRequest(t, http.MethodPost, "/users/ghost/groups", "root", body), "ghost")
	resp := doRequest(t, env.handler.AddToGroup, req)
	assertCode(t, resp, 103)
}

func TestRemoveFromGroup_AdminRemovesOther(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "eng"}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/bob/groups", "root", body), "bob")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, StatusOK)

	if env.dir.members["eng"]["bob"] {
		t.Error("Expected bob to be removed from eng")
	}
}

func TestRemoveFromGroup_AdminSelfFromAdminGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: models.AdminGroup}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/root/groups", "root", body), "root")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, 105)
	if resp.Meta.Message != "Cannot remove yourself from the admin group" {
		t.Errorf("Expected admin self-removal message, got: %q", resp.Meta.Message)
	}

	if !env.dir.members[models.AdminGroup]["root"] {
		t.Error("Expected root to remain in the admin group")
	}
}

func TestRemoveFromGroup_AdminSelfFromAdminNamedGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	// A distinct group that only shares the admin group's name case-folded
	env.dir.addGroup("Admin")
	env.dir.members["Admin"]["root"] = true

	body := GroupMembershipRequest{GroupID: "Admin"}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/root/groups", "root", body), "root")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, StatusOK)

	if env.dir.members["Admin"]["root"] {
		t.Error("Expected root to be removed from the Admin-named group")
	}
}

func TestRemoveFromGroup_AdminSelfFromOtherGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	env.dir.members["sales"]["root"] = true

	body := GroupMembershipRequest{GroupID: "sales"}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/root/groups", "root", body), "root")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, StatusOK)

	if env.dir.members["sales"]["root"] {
		t.Error("Expected root to be removed from sales")
	}
}

func TestRemoveFromGroup_SubAdminSelfFromAdministeredGroup(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "eng"}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/alice/groups", "alice", body), "alice")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, 105)
	if resp.Meta.Message != "Cannot remove yourself from this group as you are a SubAdmin" {
		t.Errorf("Expected sub-admin self-removal message, got: %q", resp.Meta.Message)
	}
}

func TestRemoveFromGroup_SubAdminRemovesOther(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()

	body := GroupMembershipRequest{GroupID: "eng"}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/bob/groups", "alice", body), "bob")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, StatusOK)

	if env.dir.members["eng"]["bob"] {
		t.Error("Expected bob to be removed from eng")
	}
}

func TestRemoveFromGroup_NotManager(t *testing.T) {
	env := newTestEnv()
	env.seedStandard()
	env.dir.members["sales"]["bob"] = true

	body := GroupMembershipRequest{GroupID: "sales"}
	req := withUserParam(newRequest(t, http.MethodDelete, "/users/bob/groups", "alice", body), "bob")
	resp := doRequest(t, env.handler.RemoveFromGroup, req)
	assertCode(t, resp, 104)

	if !env.dir.members["sales"]["bob"] {
		t.Error("Expected bob to remain in sales")
	}
}
