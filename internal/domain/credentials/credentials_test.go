package credentials

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/security"
	"github.com/clinic/clinic/internal/platform/validate"
)

var testParams = security.Params{Memory: 1024, Time: 1, Parallelism: 1, SaltLen: 8, KeyLen: 16}

type mockRepo struct {
	accounts map[string]*Account
}

func (m *mockRepo) FindByEmail(_ context.Context, email string) (*Account, error) {
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) UpdatePassword(_ context.Context, userID, hash string) error {
	a, ok := m.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type auditStore struct {
	entries []*audit.Entry
}

func (s *auditStore) Insert(_ context.Context, e *audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *auditStore) List(context.Context, audit.Filter) ([]*audit.EntryView, error) {
	return nil, nil
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	audit   *auditStore
	revoked *auth.MemoryRevocationStore
	logs    *bytes.Buffer
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := security.HashPassword("secreto1", testParams)
	require.NoError(t, err)

	f := &fixture{
		repo:    &mockRepo{accounts: map[string]*Account{"u-1": {UserID: "u-1", Email: "root@clinic.test", PasswordHash: hash}}},
		audit:   &auditStore{},
		revoked: auth.NewMemoryRevocationStore(),
		logs:    &bytes.Buffer{},
		now:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, passTx{}, audit.NewLogger(f.audit, zerolog.Nop(), nil), f.revoked, zerolog.New(f.logs))
	f.svc.params = testParams
	f.svc.now = func() time.Time { return f.now }
	return f
}

var root = &auth.Identity{ID: "u-1", Email: "Root@Clinic.test"}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ChangePassword(context.Background(), root, &auth.Principal{UserID: 3},
		ChangePasswordInput{CurrentPassword: "secreto1", NewPassword: "nuevo-secreto"})
	require.NoError(t, err)

	ok, err := security.VerifyPassword("nuevo-secreto", f.repo.accounts["u-1"].PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	before, err := f.revoked.RevokedBefore(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, f.now, before)

	require.Len(t, f.audit.entries, 1)
	e := f.audit.entries[0]
	assert.Equal(t, audit.ActionChangePassword, e.Action)
	assert.Equal(t, "u-1", e.EntityID)
	assert.Equal(t, int64(3), *e.UserID)
	assert.NotContains(t, string(e.Details), "secreto")
	assert.NotContains(t, f.logs.String(), "secreto")
}

func TestChangePassword_LogsClinic(t *testing.T) {
	f := newFixture(t)
	ctx := context.WithValue(context.Background(), db.TenantIDKey, "norte")

	require.NoError(t, f.svc.ChangePassword(ctx, root, &auth.Principal{UserID: 3},
		ChangePasswordInput{CurrentPassword: "secreto1", NewPassword: "nuevo-secreto"}))
	assert.Contains(t, f.logs.String(), `"tenant":"norte"`)
}

func TestChangePassword_Rejections(t *testing.T) {
	cases := []struct {
		name string
		id   *auth.Identity
		in   ChangePasswordInput
		code apperr.Code
	}{
		{"missing current", root, ChangePasswordInput{NewPassword: "abcdef"}, apperr.CodeBadRequest},
		{"too short", root, ChangePasswordInput{CurrentPassword: "secreto1", NewPassword: "abc"}, apperr.CodeBadRequest},
		{"wrong current", root, ChangePasswordInput{CurrentPassword: "otro", NewPassword: "abcdef"}, apperr.CodeBadRequest},
		{"no account", &auth.Identity{ID: "x", Email: "oauth@clinic.test"}, ChangePasswordInput{CurrentPassword: "a", NewPassword: "abcdef"}, apperr.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			original := f.repo.accounts["u-1"].PasswordHash

			err := f.svc.ChangePassword(context.Background(), tc.id, nil, tc.in)
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			assert.Equal(t, original, f.repo.accounts["u-1"].PasswordHash)
			assert.Empty(t, f.audit.entries)

			before, _ := f.revoked.RevokedBefore(context.Background(), tc.id.ID)
			assert.True(t, before.IsZero())
		})
	}
}

func TestChangePassword_CorruptStoredHash(t *testing.T) {
	f := newFixture(t)
	f.repo.accounts["u-1"].PasswordHash = "plaintext"
	err := f.svc.ChangePassword(context.Background(), root, nil,
		ChangePasswordInput{CurrentPassword: "plaintext", NewPassword: "abcdef"})
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

type lookup struct{}

func (lookup) LookupPrincipal(_ context.Context, email string) (*auth.Principal, error) {
	return &auth.Principal{UserID: 1, Email: email, Role: auth.RoleSuperuser}, nil
}

func TestHandler_RateLimited(t *testing.T) {
	f := newFixture(t)
	e := echo.New()
	e.Validator = validate.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	su := e.Group("/api/superuser", auth.DevSessionMiddleware(), auth.RequireRole(lookup{}, auth.RoleSuperuser))
	limit := middleware.WindowLimit(middleware.NewMemoryWindow(), "change-password", 2, time.Minute, LimitKey, zerolog.Nop())
	NewHandler(f.svc).RegisterRoutes(su, limit)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/superuser/change-password", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Dev-User", "root@clinic.test")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"currentPassword":"wrong","newPassword":"abcdef"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(`{"currentPassword":"secreto1","newPassword":"abcdefg"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = post(`{"currentPassword":"abcdefg","newPassword":"otra-clave"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
