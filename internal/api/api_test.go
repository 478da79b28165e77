package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-users/internal/engine"
	"github.com/celerix-dev/celerix-users/internal/session"
	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/pkg/schema"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := userstore.New(engine.NewMemStore("api", nil, nil, 0), userstore.Options{})
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	h := &Handler{Store: store, Session: session.New(store, session.Options{})}
	return NewEngine(h), h
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not an error body: %s", w.Body.String())
	}
	return body.Error
}

func TestCreateAndListUsers(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "POST", "/api/users", map[string]string{"username": "bob", "password": "pw"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "pw") {
		t.Error("Password must not be returned")
	}

	w = do(r, "POST", "/api/users", map[string]string{"username": "bob", "password": "other"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate, got %d", w.Code)
	}

	w = do(r, "POST", "/api/users", map[string]string{"username": "   ", "password": "pw"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for blank username, got %d", w.Code)
	}

	w = do(r, "POST", "/api/users", map[string]string{"username": "carol"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing password, got %d", w.Code)
	}
	if msg := errorOf(t, w); msg != "password is required" {
		t.Errorf("Expected JSON field name in validation error, got %q", msg)
	}

	w = do(r, "GET", "/api/users", nil)
	var users []map[string]any
	json.Unmarshal(w.Body.Bytes(), &users)
	if len(users) != 1 || users[0]["username"] != "bob" {
		t.Errorf("Expected [bob], got %v", users)
	}
}

func TestGetAndDeleteUser(t *testing.T) {
	r, h := setupTestRouter(t)
	h.Store.CreateUser("bob", "pw")

	if w := do(r, "GET", "/api/users/bob", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := do(r, "GET", "/api/users/nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	if w := do(r, "DELETE", "/api/users/admin", nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for admin, got %d", w.Code)
	}
	if w := do(r, "DELETE", "/api/users/nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := do(r, "DELETE", "/api/users/bob", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	if users := h.Store.ListUsers(); len(users) != 0 {
		t.Errorf("Expected no users, got %v", users)
	}
}

func TestSessionFlow(t *testing.T) {
	r, h := setupTestRouter(t)
	h.Store.CreateUser("bob", "pw")

	if w := do(r, "GET", "/api/session", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 before login, got %d", w.Code)
	}

	w := do(r, "POST", "/api/session", map[string]string{"username": "bob", "password": "bad"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	w = do(r, "POST", "/api/session", map[string]string{"username": "bob", "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/session", nil)
	var user map[string]any
	json.Unmarshal(w.Body.Bytes(), &user)
	if w.Code != http.StatusOK || user["username"] != "bob" {
		t.Errorf("Expected bob's session, got %d %v", w.Code, user)
	}

	if w := do(r, "DELETE", "/api/session", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if h.Session.IsLoggedIn() {
		t.Error("Expected logout to clear the session")
	}
}

func TestActivities(t *testing.T) {
	r, h := setupTestRouter(t)
	h.Store.CreateUser("bob", "pw")

	w := do(r, "POST", "/api/users/bob/activities", map[string]string{"description": "Opened report"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	if w := do(r, "POST", "/api/users/bob/activities", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without description, got %d", w.Code)
	}

	w = do(r, "GET", "/api/users/bob/activities", nil)
	var list []schema.ActivityEntry
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Description != "Opened report" || list[0].Username != "bob" {
		t.Errorf("Expected one report entry, got %v", list)
	}

	w = do(r, "GET", "/api/activities", nil)
	var all []schema.ActivityEntry
	json.Unmarshal(w.Body.Bytes(), &all)
	if len(all) != 2 || all[0].Username != schema.SystemActor || all[1].Username != "bob" {
		t.Errorf("Expected the creation entry then the report, got %v", all)
	}

	if w := do(r, "DELETE", "/api/users/bob/activities", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	w = do(r, "GET", "/api/users/bob/activities", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}
}

func TestStorageAndReset(t *testing.T) {
	r, h := setupTestRouter(t)
	h.Store.CreateUser("bob", "pw")

	w := do(r, "GET", "/api/storage", nil)
	var usage schema.StorageUsage
	json.Unmarshal(w.Body.Bytes(), &usage)
	if usage.Users.Count != 2 || usage.Activities.Count != 1 || usage.TotalSize != usage.Users.Size+usage.Activities.Size {
		t.Errorf("Unexpected usage %+v", usage)
	}

	if w := do(r, "POST", "/api/reset", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if users := h.Store.ListUsers(); len(users) != 0 {
		t.Errorf("Expected reset to remove users, got %v", users)
	}
	if _, ok := h.Store.User(schema.AdminUsername); !ok {
		t.Error("Expected admin to be recreated after reset")
	}
}

func TestHealthAndRequestID(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}

	req, _ := http.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}

	if w := do(r, "GET", "/api/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{userstore.ErrUsernameRequired, http.StatusBadRequest},
		{userstore.ErrUserExists, http.StatusConflict},
		{userstore.ErrAdminProtected, http.StatusForbidden},
		{userstore.ErrUserNotFound, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
