package domain

import (
	"strings"
	"time"

	"direct_chat_service/pkg/encrypt"
)

// Account 用來表示登入帳號, the profile row lives in the chat context
type Account struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName gorm table name
func (Account) TableName() string {
	return "auth_accounts"
}

// IsPasswordMatch 密碼驗證
func (a *Account) IsPasswordMatch(inputPwd string) error {
	return encrypt.CheckPassword(a.PasswordHash, inputPwd)
}

// NormalizeEmail emails are compared case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
