package app

import (
	"context"
	"sync"
	"time"

	authdomain "direct_chat_service/internal/auth/domain"
	"direct_chat_service/pkg"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// AuthClient the part of the auth collaborator the gate consumes
type AuthClient interface {
	GetSession(ctx context.Context, accessToken string) (*authdomain.Session, error)
	OnSessionChange(fn func(authdomain.SessionEvent)) (unsubscribe func())
}

// View a routable page of the dashboard front end
type View string

const (
	// ViewLogin public login page
	ViewLogin View = "/login"
	// ViewRegister public register page
	ViewRegister View = "/register"
	// ViewDashboard private chat dashboard
	ViewDashboard View = "/dashboard"
)

var publicViews = []View{ViewLogin, ViewRegister}

// SessionGate keeps the authentication state of one browser session
// and decides which view a path resolves to.
type SessionGate struct {
	auth    AuthClient
	timeout time.Duration

	mu          sync.RWMutex
	token       string
	session     *authdomain.Session
	unsubscribe func()
}

// NewSessionGate create SessionGate
func NewSessionGate(auth AuthClient, timeout time.Duration) *SessionGate {
	return &SessionGate{auth: auth, timeout: timeout}
}

// Start subscribes to session changes, then resolves the current session of accessToken.
// A failed or timed out lookup leaves the gate unauthenticated.
func (g *SessionGate) Start(ctx context.Context, accessToken string) bool {
	g.mu.Lock()
	g.token = accessToken
	if g.unsubscribe == nil {
		g.unsubscribe = g.auth.OnSessionChange(g.onSessionChange)
	}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, err := g.auth.GetSession(ctx, accessToken)
	if err != nil || session == nil {
		logger.Log.Debug("session lookup failed, not authenticated", zap.Error(err))
		g.setSession(nil)
		return false
	}

	g.setSession(session)
	return true
}

// onSessionChange runs inside the collaborator's notification, so the cache is
// updated before any later route decision.
func (g *SessionGate) onSessionChange(ev authdomain.SessionEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ev.Session.AccessToken == "" || ev.Session.AccessToken != g.token {
		return
	}

	switch ev.Kind {
	case authdomain.SignedIn:
		s := ev.Session
		g.session = &s
	case authdomain.SignedOut:
		g.session = nil
	}
}

func (g *SessionGate) setSession(s *authdomain.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = s
}

// IsAuthenticated reports the cached state
func (g *SessionGate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session != nil && !g.session.IsExpired()
}

// UserID the authenticated user, empty when signed out
func (g *SessionGate) UserID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return ""
	}
	return g.session.UserID
}

// AccessToken the token the gate was started with
func (g *SessionGate) AccessToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// Resolve maps a requested path to the view to show and whether the client must redirect
func (g *SessionGate) Resolve(path string) (View, bool) {
	authed := g.IsAuthenticated()
	view := View(path)

	switch {
	case pkg.Contains(publicViews, view):
		if authed {
			return ViewDashboard, true
		}
		return view, false
	case view == ViewDashboard:
		if !authed {
			return ViewLogin, true
		}
		return ViewDashboard, false
	default:
		if authed {
			return ViewDashboard, true
		}
		return ViewLogin, true
	}
}

// Stop releases the session change subscription and drops the cache
func (g *SessionGate) Stop() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.session = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
