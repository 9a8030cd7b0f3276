package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"direct_chat_service/internal/auth/domain"
	"direct_chat_service/internal/auth/repository"
	chatdomain "direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/database"
	"direct_chat_service/pkg/encrypt"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"
	token "direct_chat_service/pkg/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthUseCase 這裡封裝了對外提供的認證服務
type AuthUseCase interface {
	SignUp(ctx context.Context, email, password, name string) (*domain.Account, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetSession(ctx context.Context, accessToken string) (*domain.Session, error)
	// OnSessionChange registers fn for every sign in and sign out, the returned func unregisters it
	OnSessionChange(fn func(domain.SessionEvent)) (unsubscribe func())
}

// ProfileWriter creates the public profile row of a new account
type ProfileWriter interface {
	Insert(ctx context.Context, user *chatdomain.User) error
}

type authUseCase struct {
	accountRepo  repository.AccountRepository
	profiles     ProfileWriter
	sessionTTL   time.Duration
	redisRepo    database.RedisRepository[domain.Session]
	hashPassword func(string) (string, error)
	issuer       string

	mu        sync.Mutex
	listeners map[int]func(domain.SessionEvent)
	nextID    int
}

// NewAuthUseCase 建立一個新的 AuthUseCase
func NewAuthUseCase(accountRepo repository.AccountRepository,
	profiles ProfileWriter,
	sessionTTL time.Duration,
	redisRepo database.RedisRepository[domain.Session],
	hashPassword func(string) (string, error),
	issuer string,
) AuthUseCase {
	return &authUseCase{
		accountRepo:  accountRepo,
		profiles:     profiles,
		sessionTTL:   sessionTTL,
		redisRepo:    redisRepo,
		hashPassword: hashPassword,
		issuer:       issuer,
		listeners:    map[int]func(domain.SessionEvent){},
	}
}

func sessionKey(accessToken string) string {
	return "session:" + accessToken
}

// SignUp creates the account and its profile, the display name is stored as profile metadata
func (a *authUseCase) SignUp(ctx context.Context, email, password, name string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email", errprocess.ErrInvalidInput)
	}

	if _, err := a.accountRepo.FindByEmail(ctx, email); err == nil {
		return nil, errprocess.ErrDuplicateRegistration
	} else if !errors.Is(err, errprocess.ErrNotFound) {
		return nil, err
	}

	hashed, err := a.hashPassword(password)
	if err != nil {
		if errors.Is(err, encrypt.ErrWeakPassword) {
			return nil, fmt.Errorf("%w: %v", errprocess.ErrInvalidInput, err)
		}
		return nil, err
	}

	account := domain.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Name:         name,
	}
	if err := a.accountRepo.Create(ctx, &account); err != nil {
		return nil, err
	}

	if err := a.profiles.Insert(ctx, &chatdomain.User{ID: account.ID, Name: name, Email: email}); err != nil {
		logger.Log.Error("create profile failed", zap.String("user_id", account.ID), zap.Error(err))
		return nil, fmt.Errorf("create profile: %w", err)
	}

	logger.Log.Info("account registered", zap.String("user_id", account.ID))
	return &account, nil
}

// SignIn 驗證帳密並建立 session
func (a *authUseCase) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	account, err := a.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errprocess.ErrNotFound) {
			return nil, errprocess.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := account.IsPasswordMatch(password); err != nil {
		logger.Log.Debug("password mismatch", zap.String("user_id", account.ID))
		return nil, errprocess.ErrInvalidCredentials
	}

	accessToken, err := token.GenerateJWTFunc(account.ID, string(token.RoleUser), a.issuer)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now()
	session := domain.Session{
		AccessToken: accessToken,
		UserID:      account.ID,
		Email:       account.Email,
		Name:        account.Name,
		CreatedAt:   now,
		ExpiresAt:   now.Add(a.sessionTTL),
	}
	if err := a.redisRepo.Set(ctx, sessionKey(accessToken), session, a.sessionTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	a.notify(domain.SessionEvent{Kind: domain.SignedIn, Session: session})
	return &session, nil
}

// SignOut 刪除 session, listeners are told even when the stored session was already gone
func (a *authUseCase) SignOut(ctx context.Context, accessToken string) error {
	claims, err := token.ParseJWTFunc(accessToken)
	if err != nil {
		return errprocess.ErrNotAuthenticated
	}

	delErr := a.redisRepo.Del(ctx, sessionKey(accessToken))
	a.notify(domain.SessionEvent{
		Kind:    domain.SignedOut,
		Session: domain.Session{AccessToken: accessToken, UserID: claims.UserID},
	})
	return delErr
}

// GetSession returns the live session of accessToken, any failure is ErrNotAuthenticated
func (a *authUseCase) GetSession(ctx context.Context, accessToken string) (*domain.Session, error) {
	if accessToken == "" {
		return nil, errprocess.ErrNotAuthenticated
	}

	claims, err := token.ParseJWTFunc(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errprocess.ErrNotAuthenticated, err)
	}

	session, err := a.redisRepo.Get(ctx, sessionKey(accessToken))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errprocess.ErrNotAuthenticated, err)
	}
	if session.UserID != claims.UserID || session.IsExpired() {
		return nil, errprocess.ErrNotAuthenticated
	}

	return &session, nil
}

func (a *authUseCase) OnSessionChange(fn func(domain.SessionEvent)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// notify runs listeners synchronously on the caller's goroutine
func (a *authUseCase) notify(ev domain.SessionEvent) {
	a.mu.Lock()
	fns := make([]func(domain.SessionEvent), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
