package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	authdomain "direct_chat_service/internal/auth/domain"
	"direct_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

type stubAuth struct {
	sessions map[string]*authdomain.Session
}

func (s stubAuth) GetSession(_ context.Context, accessToken string) (*authdomain.Session, error) {
	if session, ok := s.sessions[accessToken]; ok {
		return session, nil
	}
	return nil, errors.New("no session")
}

func (s stubAuth) OnSessionChange(func(authdomain.SessionEvent)) func() {
	return func() {}
}

func TestRouteHandler_Resolve(t *testing.T) {
	auth := stubAuth{sessions: map[string]*authdomain.Session{
		"good": {AccessToken: "good", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	app := fiber.New()
	app.Get("/route", NewRouteHandler(auth, time.Second).Resolve)

	tests := []struct {
		name     string
		target   string
		view     string
		redirect bool
	}{
		{"guest dashboard", "/route?path=/dashboard", "/login", true},
		{"guest login", "/route?path=/login", "/login", false},
		{"user login", "/route?path=/login&auth=good", "/dashboard", true},
		{"user dashboard", "/route?path=/dashboard&auth=good", "/dashboard", false},
		{"user unknown", "/route?path=/nowhere&auth=good", "/dashboard", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var body struct {
				View     string `json:"view"`
				Redirect bool   `json:"redirect"`
			}
			raw, _ := io.ReadAll(resp.Body)
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.view, body.View)
			assert.Equal(t, tt.redirect, body.Redirect)
		})
	}
}

func TestDebugLogFlag(t *testing.T) {
	app := fiber.New()
	app.Post("/debug", DebugLogFlag)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/debug?service=chat&status=true", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/debug?service=chat&status=maybe", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	logger.Log.SetDebugMode(false)
}
