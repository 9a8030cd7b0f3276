package app

import (
	"context"
	"fmt"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// PresenceSource answers whether a user is currently online
type PresenceSource interface {
	IsOnline(userID string) bool
}

// ContactDirectory loads the peers of the session user, read only
type ContactDirectory struct {
	profileRepo repository.ProfileRepository
	msgRepo     repository.MessageRepository
	avatars     repository.AvatarStore
	timeout     time.Duration
}

// NewContactDirectory create ContactDirectory, avatars may be nil
func NewContactDirectory(profileRepo repository.ProfileRepository, msgRepo repository.MessageRepository, avatars repository.AvatarStore, timeout time.Duration) *ContactDirectory {
	return &ContactDirectory{
		profileRepo: profileRepo,
		msgRepo:     msgRepo,
		avatars:     avatars,
		timeout:     timeout,
	}
}

// LoadContacts every profile except self, in fetch order, with online flag and unread count
func (d *ContactDirectory) LoadContacts(ctx context.Context, selfID string, presence PresenceSource) ([]domain.Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	users, err := d.profileRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	unread, err := d.msgRepo.CountUnseenBySender(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("load unread counts: %w", err)
	}

	contacts := make([]domain.Contact, 0, len(users))
	for _, u := range users {
		if u.ID == selfID {
			continue
		}
		c := domain.NewContact(u)
		c.UnreadCount = unread[u.ID]
		if presence != nil {
			c.Online = presence.IsOnline(u.ID)
		}
		if d.avatars != nil && u.ProfileImage != "" {
			url, err := d.avatars.AvatarURL(ctx, u.ProfileImage)
			if err != nil {
				logger.Log.Warn("avatar url", zap.String("user_id", u.ID), zap.Error(err))
			} else {
				c.AvatarURL = url
			}
		}
		contacts = append(contacts, c)
	}

	return contacts, nil
}
