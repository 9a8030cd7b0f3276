package repository

import (
	"context"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// notifyingMessageRepository publishes every stored message on the realtime feed
type notifyingMessageRepository struct {
	MessageRepository
	realtime Realtime
}

// NewNotifyingMessageRepository wraps repo so that a successful Insert emits an insert event
func NewNotifyingMessageRepository(repo MessageRepository, realtime Realtime) MessageRepository {
	return &notifyingMessageRepository{MessageRepository: repo, realtime: realtime}
}

func (r *notifyingMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	if err := r.MessageRepository.Insert(ctx, msg); err != nil {
		return err
	}

	published := msg.Clone()
	published.Delivery = ""
	// the row is durable, a lost notification is repaired by the next fetch
	if err := r.realtime.PublishInsert(ctx, published); err != nil {
		logger.Log.Warn("publish insert event failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return nil
}
