package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"direct_chat_service/internal/auth/domain"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthUseCase struct {
	mock.Mock
}

func (m *mockAuthUseCase) SignUp(ctx context.Context, email, password, name string) (*domain.Account, error) {
	args := m.Called(email, password, name)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthUseCase) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	args := m.Called(email, password)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthUseCase) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(accessToken).Error(0)
}

func (m *mockAuthUseCase) GetSession(ctx context.Context, accessToken string) (*domain.Session, error) {
	args := m.Called(accessToken)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthUseCase) OnSessionChange(fn func(domain.SessionEvent)) func() {
	return func() {}
}

func newAuthApp(uc AuthUseCase) *fiber.App {
	h := NewAuthHandler(uc, time.Second)
	app := fiber.New()
	app.Post("/auth/register", h.Register)
	app.Post("/auth/login", h.Login)
	app.Get("/auth/session", h.Session)
	app.Post("/auth/logout", func(c *fiber.Ctx) error {
		c.Locals(middlewares.TokenAccess, "tok")
		return c.Next()
	}, h.Logout)
	return app
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"created", nil, fiber.StatusCreated},
		{"duplicate", errprocess.ErrDuplicateRegistration, fiber.StatusConflict},
		{"invalid", errprocess.ErrInvalidInput, fiber.StatusBadRequest},
		{"store down", errors.New("db down"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(mockAuthUseCase)
			if tt.err == nil {
				uc.On("SignUp", "a@example.com", "secret1", "A").Return(&domain.Account{ID: "user-1"}, nil)
			} else {
				uc.On("SignUp", "a@example.com", "secret1", "A").Return(nil, tt.err)
			}

			resp, err := newAuthApp(uc).Test(jsonRequest(http.MethodPost, "/auth/register",
				`{"email":"a@example.com","password":"secret1","name":"A"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAuthHandler_LoginSetsCookie(t *testing.T) {
	uc := new(mockAuthUseCase)
	uc.On("SignIn", "a@example.com", "secret1").
		Return(&domain.Session{AccessToken: "tok", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil)
	uc.On("SignIn", "a@example.com", "wrong").Return(nil, errprocess.ErrInvalidCredentials)

	app := newAuthApp(uc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"secret1"}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), middlewares.CookieToken+"=tok")

	resp, err = app.Test(jsonRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"wrong"}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/auth/login", `{`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAuthHandler_SessionAndLogout(t *testing.T) {
	uc := new(mockAuthUseCase)
	uc.On("GetSession", "tok").Return(&domain.Session{AccessToken: "tok", UserID: "user-1"}, nil)
	uc.On("GetSession", "").Return(nil, errprocess.ErrNotAuthenticated)
	uc.On("SignOut", "tok").Return(nil)

	app := newAuthApp(uc)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	uc.AssertCalled(t, "SignOut", "tok")
}
