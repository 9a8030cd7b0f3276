package repository

import (
	"context"
	"time"

	"direct_chat_service/pkg/database"
)

// AvatarStore resolves a profile image object key to a fetchable URL
type AvatarStore interface {
	AvatarURL(ctx context.Context, objectKey string) (string, error)
}

type minioAvatarStore struct {
	client *database.MinIOClient
	expiry time.Duration
}

// NewMinIOAvatarStore presigned GET urls on the profile image bucket
func NewMinIOAvatarStore(client *database.MinIOClient, expiry time.Duration) AvatarStore {
	return &minioAvatarStore{client: client, expiry: expiry}
}

func (s *minioAvatarStore) AvatarURL(ctx context.Context, objectKey string) (string, error) {
	return s.client.PresignGetURL(ctx, objectKey, s.expiry)
}
