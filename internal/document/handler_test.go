package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docshare/internal/auth/token"
	"docshare/internal/document/model"
	"docshare/internal/document/repository"
	"docshare/internal/document/service"
	userModel "docshare/internal/user/model"
	userRepo "docshare/internal/user/repository"
	userService "docshare/internal/user/service"
	"docshare/middleware"
	"docshare/pkg/clock"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	router *mux.Router
	users  *userService.UserService
	clock  *clock.Fake
}

// asUser stands in for AuthMiddleware: the principal comes from X-User.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-User"); id != "" {
			r = r.WithContext(middleware.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	c := clock.NewFake(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC))
	users := userService.NewUserService(userRepo.NewMemoryRepository(), token.NewManager("s", time.Hour, c), bcrypt.MinCost, c)
	h := NewDocumentHandler(service.NewDocumentService(repository.NewMemoryRepository(), users, nil, c, 0, nil))

	r := mux.NewRouter()
	r.HandleFunc("/public/{token}", h.GetPublicDocument).Methods(http.MethodGet)
	docs := r.PathPrefix("/docs").Subrouter()
	docs.Use(asUser)
	docs.HandleFunc("", h.CreateDocument).Methods(http.MethodPost)
	docs.HandleFunc("", h.GetDocuments).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", h.GetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", h.UpdateDocument).Methods(http.MethodPatch)
	docs.HandleFunc("/{id}", h.DeleteDocument).Methods(http.MethodDelete)
	docs.HandleFunc("/{id}/share", h.ShareDocument).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/editors", h.AddEditor).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/editors/{editorId}", h.RemoveEditor).Methods(http.MethodDelete)
	docs.HandleFunc("/{id}/lock", h.LockDocument).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/unlock", h.UnlockDocument).Methods(http.MethodPost)
	return &testEnv{router: r, users: users, clock: c}
}

func (e *testEnv) register(t *testing.T, name string) userModel.PublicUser {
	t.Helper()
	resp, err := e.users.Register(context.Background(), userModel.RegisterRequest{
		Email: name + "@example.com", Username: name, Password: "secret1",
	})
	require.NoError(t, err)
	return resp.User
}

func (e *testEnv) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User", userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateAndGet(t *testing.T) {
	e := newEnv(t)
	a := e.register(t, "alice")

	rec := e.do(t, http.MethodPost, "/docs", a.ID, `{"title":"Notes"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.DocumentResponse](t, rec)
	assert.Equal(t, a.ID, created.OwnerID)
	assert.NotContains(t, rec.Body.String(), "lockedBy")

	rec = e.do(t, http.MethodGet, "/docs/"+created.ID, a.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[model.DocumentResponse](t, rec).ID)

	rec = e.do(t, http.MethodGet, "/docs", a.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.DocumentSummary](t, rec), 1)
}

func TestRequestValidation(t *testing.T) {
	e := newEnv(t)
	a := e.register(t, "alice")
	doc := decode[model.DocumentResponse](t, e.do(t, http.MethodPost, "/docs", a.ID, `{"title":"Notes"}`))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed id", http.MethodGet, "/docs/not-a-uuid", "", http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/docs/00000000-0000-0000-0000-000000000001", "", http.StatusNotFound},
		{"bad json", http.MethodPost, "/docs", `{"title":`, http.StatusBadRequest},
		{"missing title", http.MethodPost, "/docs", `{}`, http.StatusBadRequest},
		{"empty patch title", http.MethodPatch, "/docs/" + doc.ID, `{"title":""}`, http.StatusBadRequest},
		{"share without flag", http.MethodPost, "/docs/" + doc.ID + "/share", `{}`, http.StatusBadRequest},
		{"malformed editor id", http.MethodDelete, "/docs/" + doc.ID + "/editors/xyz", "", http.StatusBadRequest},
		{"unknown editor email", http.MethodPost, "/docs/" + doc.ID + "/editors", `{"email":"ghost@example.com"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, a.ID, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	rec := e.do(t, http.MethodGet, "/docs", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConflictBody(t *testing.T) {
	e := newEnv(t)
	a := e.register(t, "alice")
	b := e.register(t, "bob")
	doc := decode[model.DocumentResponse](t, e.do(t, http.MethodPost, "/docs", a.ID, `{"title":"Notes"}`))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/docs/"+doc.ID+"/editors", a.ID, `{"email":"bob@example.com"}`).Code)

	rec := e.do(t, http.MethodPost, "/docs/"+doc.ID+"/lock", b.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	lock := decode[model.LockResponse](t, rec)
	assert.True(t, lock.OK)
	assert.True(t, lock.Locked)

	rec = e.do(t, http.MethodPatch, "/docs/"+doc.ID, a.ID, `{"content":"mine"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Document is being edited by another user", body["error"])
	assert.Equal(t, b.ID, body["lockedBy"])
	assert.Equal(t, e.clock.Now().Format(time.RFC3339), body["lockedAt"])

	rec = e.do(t, http.MethodPost, "/docs/"+doc.ID+"/lock", a.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublicRoute(t *testing.T) {
	e := newEnv(t)
	a := e.register(t, "alice")
	doc := decode[model.DocumentResponse](t, e.do(t, http.MethodPost, "/docs", a.ID, `{"title":"Notes","content":"hello"}`))

	share := decode[model.ShareResponse](t, e.do(t, http.MethodPost, "/docs/"+doc.ID+"/share", a.ID, `{"isPublic":true}`))
	require.NotNil(t, share.PublicToken)

	rec := e.do(t, http.MethodGet, "/public/"+*share.PublicToken, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Notes", body["title"])
	assert.Equal(t, "hello", body["content"])
	for _, hidden := range []string{"ownerId", "editorIds", "publicToken", "lockedBy", "isPublic"} {
		assert.NotContains(t, body, hidden)
	}
}
