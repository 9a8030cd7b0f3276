package domain

import (
	"fmt"
	"strings"
	"time"

	errprocess "direct_chat_service/pkg/err"
)

// User 一筆 profiles 資料
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Name         string     `json:"name" bson:"name"`
	Email        string     `json:"email" bson:"email"`
	LastOnline   *time.Time `json:"last_online,omitempty" bson:"last_online,omitempty"`
	ProfileImage string     `json:"profile_image,omitempty" bson:"profile_image,omitempty"`
	Gender       string     `json:"gender,omitempty" bson:"gender,omitempty"`
}

// Validate checks a row read from the profiles store
func (u *User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: profile without id", errprocess.ErrInvalidRow)
	}
	if strings.TrimSpace(u.Email) == "" && strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: profile %s has neither name nor email", errprocess.ErrInvalidRow, u.ID)
	}
	return nil
}

// DisplayName falls back to the email when no name was given at sign up
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Email
}

// Contact 聯絡人, a peer user decorated for the dashboard
type Contact struct {
	User
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Online      bool   `json:"online"`
	UnreadCount int    `json:"unread_count"`
	LastMessage string `json:"last_message,omitempty"`
}

// NewContact builds a contact from a profile row
func NewContact(u User) Contact {
	return Contact{
		User:        u,
		DisplayName: u.DisplayName(),
	}
}
