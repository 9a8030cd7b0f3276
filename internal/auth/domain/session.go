package domain

import "time"

// Session 用來表示登入後的 Session
type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired 檢查 Session 是否已過期
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionEventKind kind of session change notification
type SessionEventKind string

const (
	// SignedIn a session was created
	SignedIn SessionEventKind = "SIGNED_IN"
	// SignedOut a session was destroyed
	SignedOut SessionEventKind = "SIGNED_OUT"
)

// SessionEvent delivered to session change listeners
type SessionEvent struct {
	Kind    SessionEventKind
	Session Session
}
