package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// AuthService the auth collaborator seen from a dashboard session
type AuthService interface {
	AuthClient
	SignOut(ctx context.Context, accessToken string) error
}

// DashboardDeps collaborators shared by every dashboard session
type DashboardDeps struct {
	Auth      AuthService
	Profiles  repository.ProfileRepository
	Messages  repository.MessageRepository
	Realtime  repository.Realtime
	Presence  repository.PresenceChannel
	Avatars   repository.AvatarStore
	Timeout   time.Duration
	Heartbeat time.Duration
}

// Dashboard one signed-in browser session: gate, directory, presence, conversation and composer
type Dashboard struct {
	deps      DashboardDeps
	gate      *SessionGate
	directory *ContactDirectory
	presence  *PresenceTracker
	engine    *ConversationEngine
	composer  *Composer
	selfID    string

	mu        sync.Mutex
	listeners []func(domain.Snapshot)
	emitMu    sync.Mutex // held from snapshot to the last listener so pushes leave in state order
	closeOnce sync.Once
	closeErr  error
}

// OpenDashboard authenticates accessToken, enters presence, subscribes to inserts and loads contacts
func OpenDashboard(ctx context.Context, deps DashboardDeps, accessToken string) (*Dashboard, error) {
	gate := NewSessionGate(deps.Auth, deps.Timeout)
	if !gate.Start(ctx, accessToken) {
		gate.Stop()
		return nil, errprocess.ErrNotAuthenticated
	}
	selfID := gate.UserID()

	engine := NewConversationEngine(selfID, deps.Messages, deps.Realtime, deps.Timeout)
	d := &Dashboard{
		deps:      deps,
		gate:      gate,
		directory: NewContactDirectory(deps.Profiles, deps.Messages, deps.Avatars, deps.Timeout),
		presence:  NewPresenceTracker(deps.Presence, selfID, deps.Heartbeat, deps.Timeout),
		engine:    engine,
		composer:  NewComposer(engine, deps.Messages, selfID, deps.Timeout),
		selfID:    selfID,
	}

	engine.OnChange(func(domain.Snapshot) { d.emit() })
	d.presence.OnChange(func([]string) { d.emit() })

	if err := engine.Start(ctx); err != nil {
		gate.Stop()
		return nil, err
	}
	if err := d.presence.Enter(ctx); err != nil {
		engine.Stop()
		gate.Stop()
		return nil, err
	}
	if err := d.ReloadContacts(ctx); err != nil {
		logger.Log.Warn("initial contact load", zap.String("user_id", selfID), zap.Error(err))
	}

	logger.Log.Info("dashboard opened", zap.String("user_id", selfID))
	return d, nil
}

// SelfID the signed-in user
func (d *Dashboard) SelfID() string {
	return d.selfID
}

// OnChange registers fn for every state change
func (d *Dashboard) OnChange(fn func(domain.Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Dashboard) emit() {
	d.mu.Lock()
	listeners := append([]func(domain.Snapshot){}, d.listeners...)
	d.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	d.emitMu.Lock()
	defer d.emitMu.Unlock()
	snap := d.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Snapshot the conversation state with online flags and the draft
func (d *Dashboard) Snapshot() domain.Snapshot {
	snap := d.engine.Snapshot()
	for i := range snap.Contacts {
		snap.Contacts[i].Online = d.presence.IsOnline(snap.Contacts[i].ID)
	}
	snap.Draft = d.composer.Draft()
	return snap
}

func (d *Dashboard) checkSession() error {
	if !d.gate.IsAuthenticated() {
		return errprocess.ErrNotAuthenticated
	}
	return nil
}

// ReloadContacts reloads the directory, a failure keeps the current list
func (d *Dashboard) ReloadContacts(ctx context.Context) error {
	if err := d.checkSession(); err != nil {
		return err
	}
	return d.engine.ReloadContacts(ctx, func(ctx context.Context) ([]domain.Contact, error) {
		return d.directory.LoadContacts(ctx, d.selfID, d.presence)
	})
}

// Select opens the conversation with contactID
func (d *Dashboard) Select(ctx context.Context, contactID string) error {
	if err := d.checkSession(); err != nil {
		return err
	}
	return d.engine.Select(ctx, contactID)
}

// Deselect closes the conversation
func (d *Dashboard) Deselect() {
	d.engine.Deselect()
}

// Refresh re-fetches the open conversation
func (d *Dashboard) Refresh(ctx context.Context) error {
	if err := d.checkSession(); err != nil {
		return err
	}
	return d.engine.Refresh(ctx)
}

// SetDraft stores the draft text
func (d *Dashboard) SetDraft(text string) {
	d.composer.SetDraft(text)
	d.emit()
}

// Send sends text to the active contact
func (d *Dashboard) Send(ctx context.Context, text string) (*domain.Message, error) {
	if err := d.checkSession(); err != nil {
		return nil, err
	}
	msg, err := d.composer.Send(ctx, text)
	if errors.Is(err, errprocess.ErrBlankMessage) || errors.Is(err, errprocess.ErrNoContactSelected) {
		return nil, err
	}
	d.emit()
	return msg, err
}

// Retry re-submits a failed message
func (d *Dashboard) Retry(ctx context.Context, messageID string) (*domain.Message, error) {
	if err := d.checkSession(); err != nil {
		return nil, err
	}
	return d.composer.Retry(ctx, messageID)
}

// Logout signs out and closes the session
func (d *Dashboard) Logout(ctx context.Context) error {
	// presence is withdrawn while the session is still valid
	closeErr := d.Close(ctx)

	signOutCtx, cancel := context.WithTimeout(ctx, d.deps.Timeout)
	defer cancel()
	if err := d.deps.Auth.SignOut(signOutCtx, d.gate.AccessToken()); err != nil {
		logger.Log.Warn("sign out", zap.String("user_id", d.selfID), zap.Error(err))
		return err
	}
	return closeErr
}

// Close leaves presence, cancels the insert subscription, records last_online and stops the gate.
// Safe to call more than once.
func (d *Dashboard) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.presence.Leave(ctx)
		d.engine.Stop()

		lastCtx, cancel := context.WithTimeout(ctx, d.deps.Timeout)
		if err := d.deps.Profiles.UpdateLastOnline(lastCtx, d.selfID, time.Now().UTC()); err != nil {
			logger.Log.Warn("update last_online", zap.String("user_id", d.selfID), zap.Error(err))
		}
		cancel()

		d.gate.Stop()
		logger.Log.Info("dashboard closed", zap.String("user_id", d.selfID))
	})
	return d.closeErr
}
