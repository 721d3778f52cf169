package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	svc, _ := newTestService(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	router := mux.NewRouter()
	router.Use(svc.Middleware())
	NewHandler(svc, logger).Register(router.PathPrefix("/api/auth").Subrouter())

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin(logger))
	admin.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return router
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestAuthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/auth/register", "", `{"email":"a@example.com","password":"Secret1!","name":"A"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var registered struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &registered))
	assert.Equal(t, "a@example.com", registered.User.Email)

	w = do(router, http.MethodPost, "/api/auth/register", "", `{"email":"A@example.com","password":"Secret1!","name":"A"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"conflict"`)

	w = do(router, http.MethodPost, "/api/auth/login", "", `{"email":"a@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")

	w = do(router, http.MethodGet, "/api/auth/me", registered.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@example.com")
	assert.NotContains(t, w.Body.String(), "password")

	w = do(router, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOverlongPasswordIsBadRequest(t *testing.T) {
	router := newTestRouter(t)
	long := "Secret1!" + strings.Repeat("x", 76)

	w := do(router, http.MethodPost, "/api/auth/register", "", `{"email":"long@example.com","password":"`+long+`","name":"L"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "at most 72 bytes")

	w = do(router, http.MethodPost, "/api/auth/register", "", `{"email":"long@example.com","password":"Secret1!","name":"L"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/auth/login", "", `{"email":"long@example.com","password":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")
}

func TestRequireAdmin(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/admin/ping", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/auth/register", "", `{"email":"user@example.com","password":"Secret1!","name":"U"}`)
	var user struct{ Token string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	w = do(router, http.MethodGet, "/admin/ping", user.Token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPost, "/api/auth/register", "", `{"email":"admin@example.com","password":"Secret1!","name":"Ops"}`)
	var admin struct{ Token string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &admin))
	w = do(router, http.MethodGet, "/admin/ping", admin.Token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
