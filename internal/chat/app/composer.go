package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Composer holds the draft and sends messages to the active contact.
// A send is shown optimistically; a failed insert stays in the view as failed.
type Composer struct {
	engine  *ConversationEngine
	msgRepo repository.MessageRepository
	selfID  string
	timeout time.Duration
	now     func() time.Time
	newID   func() string

	mu    sync.Mutex
	draft string
}

// NewComposer create Composer
func NewComposer(engine *ConversationEngine, msgRepo repository.MessageRepository, selfID string, timeout time.Duration) *Composer {
	return &Composer{
		engine:  engine,
		msgRepo: msgRepo,
		selfID:  selfID,
		timeout: timeout,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// SetDraft replaces the draft text
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// Draft the current draft text
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Send trims text and sends it to the active contact.
// Blank text or no active contact is rejected without touching any state.
func (c *Composer) Send(ctx context.Context, text string) (*domain.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, errprocess.ErrBlankMessage
	}
	peer := c.engine.ActiveContact()
	if peer == "" {
		return nil, errprocess.ErrNoContactSelected
	}

	msg := domain.Message{
		ID:         c.newID(),
		SenderID:   c.selfID,
		ReceiverID: peer,
		Content:    content,
		CreatedAt:  c.now().UTC(),
		Delivery:   domain.DeliveryPending,
	}
	if err := c.engine.AppendLocal(msg); err != nil {
		return nil, err
	}
	c.SetDraft("")

	return c.submit(ctx, msg)
}

// Retry re-submits a failed message with its original id
func (c *Composer) Retry(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, ok := c.engine.FindMessage(messageID)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, errprocess.ErrNotFound)
	}
	if msg.Delivery != domain.DeliveryFailed {
		return &msg, nil
	}

	c.engine.SetDelivery(msg.ID, domain.DeliveryPending)
	msg.Delivery = domain.DeliveryPending
	return c.submit(ctx, msg)
}

func (c *Composer) submit(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	stored := msg.Clone()
	stored.Delivery = ""

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.msgRepo.Insert(ctx, &stored)
	cancel()

	if err != nil {
		logger.Log.Error("send message", zap.String("message_id", msg.ID), zap.Error(err))
		c.engine.SetDelivery(msg.ID, domain.DeliveryFailed)
		msg.Delivery = domain.DeliveryFailed
		return &msg, fmt.Errorf("send message: %w", err)
	}

	c.engine.SetDelivery(msg.ID, domain.DeliverySent)
	msg.Delivery = domain.DeliverySent
	return &msg, nil
}
