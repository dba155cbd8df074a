// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhead/trailhead/internal/api"
	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/trails"
	"github.com/trailhead/trailhead/internal/users"
)

const (
	testPassword  = "hunter2-loves-go"
	testAdminCode = "north-ridge-2026"
)

type memUserRepo struct {
	users map[ulid.ULID]*auth.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[ulid.ULID]*auth.User)}
}

func (r *memUserRepo) Create(_ context.Context, u *auth.User) error {
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrAlreadyExists
		}
	}
	clone := *u
	r.users[u.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) GetByResetToken(_ context.Context, token string) (*auth.User, error) {
	for _, u := range r.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context) ([]*auth.User, error) {
	out := make([]*auth.User, 0, len(r.users))
	for _, u := range r.users {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (r *memUserRepo) Update(_ context.Context, u *auth.User) error {
	if _, ok := r.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	clone := *u
	r.users[u.ID] = &clone
	return nil
}

func (r *memUserRepo) SetResetToken(_ context.Context, id ulid.ULID, token string, expiresAt time.Time) error {
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.ResetToken = &token
	u.ResetExpiresAt = &expiresAt
	return nil
}

func (r *memUserRepo) ResetPassword(_ context.Context, token, passwordHash string) error {
	for _, u := range r.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			u.PasswordHash = passwordHash
			u.ResetToken = nil
			u.ResetExpiresAt = nil
			return nil
		}
	}
	return auth.ErrNotFound
}

func (r *memUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

type memTrailRepo struct {
	trails []*trails.Trail
}

func (r *memTrailRepo) matches(t *trails.Trail, search string) bool {
	if search == "" {
		return true
	}
	s := strings.ToLower(search)
	return strings.Contains(strings.ToLower(t.Name), s) ||
		strings.Contains(strings.ToLower(t.Subtitle), s)
}

func (r *memTrailRepo) List(_ context.Context, q trails.ListQuery) ([]*trails.Trail, error) {
	var matched []*trails.Trail
	for _, t := range r.trails {
		if r.matches(t, q.Search) {
			matched = append(matched, t)
		}
	}
	if q.Skip >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Skip:]
	if q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (r *memTrailRepo) Count(_ context.Context, search string) (int, error) {
	n := 0
	for _, t := range r.trails {
		if r.matches(t, search) {
			n++
		}
	}
	return n, nil
}

func (r *memTrailRepo) GetByID(_ context.Context, id ulid.ULID) (*trails.Trail, error) {
	for _, t := range r.trails {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, trails.ErrNotFound
}

func (r *memTrailRepo) GetBySubtitle(_ context.Context, subtitle string) (*trails.Trail, error) {
	for _, t := range r.trails {
		if t.Subtitle == subtitle {
			return t, nil
		}
	}
	return nil, trails.ErrNotFound
}

func (r *memTrailRepo) Create(_ context.Context, t *trails.Trail) error {
	r.trails = append(r.trails, t)
	return nil
}

func (r *memTrailRepo) Update(_ context.Context, t *trails.Trail) error {
	for i, existing := range r.trails {
		if existing.ID == t.ID {
			r.trails[i] = t
			return nil
		}
	}
	return trails.ErrNotFound
}

func (r *memTrailRepo) Delete(_ context.Context, id ulid.ULID) error {
	for i, t := range r.trails {
		if t.ID == id {
			r.trails = append(r.trails[:i], r.trails[i+1:]...)
			return nil
		}
	}
	return trails.ErrNotFound
}

type recordingNotifier struct {
	codes []string
}

func (n *recordingNotifier) SendResetCode(_ context.Context, _, _, code string) error {
	n.codes = append(n.codes, code)
	return nil
}

type env struct {
	router   http.Handler
	userRepo *memUserRepo
	notifier *recordingNotifier
	issuer   *auth.TokenIssuer
	admin    *auth.User
	user     *auth.User
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	hasher := auth.NewBcryptHasher()
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	now := time.Now().UTC()
	admin := &auth.User{
		ID:           ulid.Make(),
		Email:        "admin@example.com",
		Name:         "Ada Admin",
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user := &auth.User{
		ID:           ulid.Make(),
		Email:        "user@example.com",
		Name:         "Uli User",
		PasswordHash: hash,
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	userRepo := newMemUserRepo()
	require.NoError(t, userRepo.Create(context.Background(), admin))
	require.NoError(t, userRepo.Create(context.Background(), user))

	issuer, err := auth.NewTokenIssuer([]byte("router-test-secret"), time.Hour)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	authSvc, err := auth.NewService(userRepo, hasher, issuer, notifier, logger)
	require.NoError(t, err)
	usersSvc, err := users.NewService(userRepo, hasher, testAdminCode, logger)
	require.NoError(t, err)
	trailsSvc, err := trails.NewService(&memTrailRepo{}, logger)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router, err := api.NewRouter(api.Deps{
		Auth:    authSvc,
		Users:   usersSvc,
		Trails:  trailsSvc,
		Issuer:  issuer,
		Metrics: metrics,
		Logger:  logger,
	})
	require.NoError(t, err)

	return &env{
		router:   router,
		userRepo: userRepo,
		notifier: notifier,
		issuer:   issuer,
		admin:    admin,
		user:     user,
	}
}

func (e *env) tokenFor(t *testing.T, u *auth.User) string {
	t.Helper()
	token, err := e.issuer.Issue(u.ID, u.Name, u.Role)
	require.NoError(t, err)
	return token
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	t.Run("valid credentials return a token and profile", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "user@example.com",
			"password": testPassword,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["token"])
		userObj, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "user@example.com", userObj["email"])
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("wrong password is 401 with a stable code", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "user@example.com",
			"password": "not-the-password",
		})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_INVALID_CREDENTIALS", decodeBody(t, rec)["code"])
	})

	t.Run("unknown email gets the same 401 as a wrong password", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "nobody@example.com",
			"password": testPassword,
		})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_INVALID_CREDENTIALS", decodeBody(t, rec)["code"])
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProfile(t *testing.T) {
	e := newEnv(t)

	t.Run("requires a token", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/auth/profile", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_UNAUTHORIZED", decodeBody(t, rec)["code"])
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/auth/profile", "not.a.jwt", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "TOKEN_MALFORMED", decodeBody(t, rec)["code"])
	})

	t.Run("expired token is 401 with its own code", func(t *testing.T) {
		shortIssuer, err := auth.NewTokenIssuer([]byte("router-test-secret"), time.Nanosecond)
		require.NoError(t, err)
		token, err := shortIssuer.Issue(e.user.ID, e.user.Name, e.user.Role)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)

		rec := e.do(t, http.MethodGet, "/auth/profile", token, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "TOKEN_EXPIRED", decodeBody(t, rec)["code"])
	})

	t.Run("valid token returns the caller's profile", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/auth/profile", e.tokenFor(t, e.user), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "user@example.com", body["email"])
		assert.Equal(t, "USER", body["role"])
	})
}

func TestPasswordResetFlow(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "user@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.MsgResetCodeSent, decodeBody(t, rec)["message"])
	require.Len(t, e.notifier.codes, 1)
	code := e.notifier.codes[0]

	rec = e.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":       code,
		"newPassword": "a-fresh-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.MsgPasswordReset, decodeBody(t, rec)["message"])

	t.Run("the new password logs in", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "user@example.com",
			"password": "a-fresh-password",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("the code is single use", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
			"token":       code,
			"newPassword": "another-password",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "RESET_TOKEN_INVALID", decodeBody(t, rec)["code"])
	})

	t.Run("unknown email is 404", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
			"email": "nobody@example.com",
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "AUTH_NOT_FOUND", decodeBody(t, rec)["code"])
	})
}

func TestUserRegistration(t *testing.T) {
	e := newEnv(t)

	t.Run("admin registration needs the right code", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/users", "", map[string]string{
			"email":     "second-admin@example.com",
			"name":      "Second Admin",
			"password":  "secret-enough",
			"adminCode": "wrong-code",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_UNAUTHORIZED", decodeBody(t, rec)["code"])
	})

	t.Run("admin registration with the right code is 201", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/users", "", map[string]string{
			"email":     "second-admin@example.com",
			"name":      "Second Admin",
			"password":  "secret-enough",
			"adminCode": testAdminCode,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "ADMIN", body["role"])
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("mobile registration defaults to USER", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/users/mobile", "", map[string]string{
			"email":    "rider@example.com",
			"name":     "Trail Rider",
			"password": "secret-enough",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "USER", decodeBody(t, rec)["role"])
	})

	t.Run("duplicate email is 400", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/users/mobile", "", map[string]string{
			"email":    "user@example.com",
			"name":     "Copy Cat",
			"password": "secret-enough",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "USER_ALREADY_EXISTS", decodeBody(t, rec)["code"])
	})

	t.Run("updating an account requires auth", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/users/"+e.user.ID.String(), "", map[string]string{
			"name": "New Name",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("authenticated update succeeds", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/users/"+e.user.ID.String(), e.tokenFor(t, e.user), map[string]string{
			"name": "New Name",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "New Name", decodeBody(t, rec)["name"])
	})
}

func TestPlatformRestrictions(t *testing.T) {
	e := newEnv(t)

	t.Run("user list is admin web only", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/users/all", e.tokenFor(t, e.user), nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "AUTH_FORBIDDEN_PLATFORM", decodeBody(t, rec)["code"])

		rec = e.do(t, http.MethodGet, "/users/all", e.tokenFor(t, e.admin), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var profiles []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
		assert.Len(t, profiles, 2)
	})

	t.Run("mobile profile shuts out admins", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/users/mobile/profile", e.tokenFor(t, e.admin), nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "AUTH_FORBIDDEN_PLATFORM", decodeBody(t, rec)["code"])

		rec = e.do(t, http.MethodGet, "/users/mobile/profile", e.tokenFor(t, e.user), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user@example.com", decodeBody(t, rec)["email"])
	})

	t.Run("anonymous callers are reported as unauthenticated not forbidden", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/users/all", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_UNAUTHORIZED", decodeBody(t, rec)["code"])
	})
}

func TestTrailRoutes(t *testing.T) {
	e := newEnv(t)
	token := e.tokenFor(t, e.admin)

	create := map[string]string{
		"name":        "Coastal Loop",
		"subtitle":    "coastal-loop",
		"description": "A long loop along the coastal cliffs with three viewpoints.",
	}

	t.Run("creation requires auth", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/trails", "", create)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	var trailID string
	t.Run("authenticated creation is 201", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/trails", token, create)
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		trailID, _ = body["id"].(string)
		require.NotEmpty(t, trailID)
	})

	t.Run("duplicate subtitle is 400", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/trails", token, create)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "TRAIL_ALREADY_EXISTS", decodeBody(t, rec)["code"])
	})

	t.Run("listing is public and paginates", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/trails?limit=5&skip=0", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		meta, ok := body["meta"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), meta["total"])
		assert.Equal(t, false, meta["hasMore"])
	})

	t.Run("search filters by name", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/trails?search=coastal", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), decodeBody(t, rec)["meta"].(map[string]any)["total"])

		rec = e.do(t, http.MethodGet, "/trails?search=alpine", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(0), body["meta"].(map[string]any)["total"])
		data, ok := body["data"].([]any)
		require.True(t, ok, "data must be an array even when empty")
		assert.Empty(t, data)
	})

	t.Run("non-numeric limit is 400", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/trails?limit=lots", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get by id is public", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/trails/"+trailID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Coastal Loop", decodeBody(t, rec)["name"])
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/trails/"+ulid.Make().String(), "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "TRAIL_NOT_FOUND", decodeBody(t, rec)["code"])
	})

	t.Run("update changes fields in place", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/trails/"+trailID, token, map[string]string{
			"name": "Coastal Loop Extended",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Coastal Loop Extended", decodeBody(t, rec)["name"])
	})

	t.Run("delete is 204 and the trail is gone", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/trails/"+trailID, token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = e.do(t, http.MethodGet, "/trails/"+trailID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
