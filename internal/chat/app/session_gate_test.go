package app

import (
	"context"
	"errors"
	"testing"
	"time"

	authdomain "direct_chat_service/internal/auth/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSessionGate_StartWithValidSession(t *testing.T) {
	auth := new(MockAuthClient)
	auth.On("GetSession", mock.Anything, "token-1").Return(testSession("token-1", selfID), nil)

	gate := NewSessionGate(auth, testTTL)
	require.True(t, gate.Start(context.Background(), "token-1"))

	assert.True(t, gate.IsAuthenticated())
	assert.Equal(t, selfID, gate.UserID())
	assert.Equal(t, "token-1", gate.AccessToken())
	assert.Equal(t, 1, auth.listenerCount())
	auth.AssertExpectations(t)
}

func TestSessionGate_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		session *authdomain.Session
		err     error
	}{
		{name: "lookup error", err: errors.New("auth unavailable")},
		{name: "no session"},
		{name: "expired", session: &authdomain.Session{AccessToken: "t", UserID: selfID, ExpiresAt: time.Now().Add(-time.Minute)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := new(MockAuthClient)
			auth.On("GetSession", mock.Anything, "t").Return(tt.session, tt.err)

			gate := NewSessionGate(auth, testTTL)
			gate.Start(context.Background(), "t")

			assert.False(t, gate.IsAuthenticated())
			view, redirect := gate.Resolve("/dashboard")
			assert.Equal(t, ViewLogin, view)
			assert.True(t, redirect)
		})
	}
}

func TestSessionGate_LookupTimeout(t *testing.T) {
	auth := new(MockAuthClient)
	auth.On("GetSession", mock.Anything, "slow").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	gate := NewSessionGate(auth, 20*time.Millisecond)
	start := time.Now()
	assert.False(t, gate.Start(context.Background(), "slow"))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, gate.IsAuthenticated())
}

func TestSessionGate_SessionChangesApplySynchronously(t *testing.T) {
	auth := new(MockAuthClient)
	auth.On("GetSession", mock.Anything, "token-1").Return(nil, errors.New("not signed in"))

	gate := NewSessionGate(auth, testTTL)
	gate.Start(context.Background(), "token-1")
	require.False(t, gate.IsAuthenticated())

	auth.notify(authdomain.SessionEvent{Kind: authdomain.SignedIn, Session: *testSession("token-1", selfID)})
	assert.True(t, gate.IsAuthenticated())

	// another browser session signing out does not affect this one
	auth.notify(authdomain.SessionEvent{Kind: authdomain.SignedOut, Session: *testSession("token-2", selfID)})
	assert.True(t, gate.IsAuthenticated())

	auth.notify(authdomain.SessionEvent{Kind: authdomain.SignedOut, Session: *testSession("token-1", selfID)})
	assert.False(t, gate.IsAuthenticated())
	assert.Empty(t, gate.UserID())
}

func TestSessionGate_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		authed   bool
		path     string
		view     View
		redirect bool
	}{
		{"guest login", false, "/login", ViewLogin, false},
		{"guest register", false, "/register", ViewRegister, false},
		{"guest dashboard", false, "/dashboard", ViewLogin, true},
		{"guest unknown", false, "/settings", ViewLogin, true},
		{"guest root", false, "/", ViewLogin, true},
		{"user login", true, "/login", ViewDashboard, true},
		{"user register", true, "/register", ViewDashboard, true},
		{"user dashboard", true, "/dashboard", ViewDashboard, false},
		{"user unknown", true, "/anything", ViewDashboard, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := new(MockAuthClient)
			if tt.authed {
				auth.On("GetSession", mock.Anything, "tok").Return(testSession("tok", selfID), nil)
			} else {
				auth.On("GetSession", mock.Anything, "tok").Return(nil, errors.New("none"))
			}
			gate := NewSessionGate(auth, testTTL)
			gate.Start(context.Background(), "tok")

			view, redirect := gate.Resolve(tt.path)
			assert.Equal(t, tt.view, view)
			assert.Equal(t, tt.redirect, redirect)
		})
	}
}

func TestSessionGate_StopReleasesSubscription(t *testing.T) {
	auth := new(MockAuthClient)
	auth.On("GetSession", mock.Anything, "token-1").Return(testSession("token-1", selfID), nil)

	gate := NewSessionGate(auth, testTTL)
	gate.Start(context.Background(), "token-1")
	gate.Stop()

	assert.Zero(t, auth.listenerCount())
	assert.Equal(t, 1, auth.unsubscribed)
	assert.False(t, gate.IsAuthenticated())

	// a second Stop is harmless
	gate.Stop()
	assert.Equal(t, 1, auth.unsubscribed)
}
