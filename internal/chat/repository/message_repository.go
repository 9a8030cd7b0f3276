package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// MessageRepository definition messages table
type MessageRepository interface {
	// Insert stores the message with the id it already carries
	Insert(ctx context.Context, msg *domain.Message) error
	// FindConversation both directions between a and b, ascending created_at
	FindConversation(ctx context.Context, userA, userB string) ([]domain.Message, error)
	// MarkSeen flags every unseen message sender->receiver, returns the number of rows changed
	MarkSeen(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error)
	// CountUnseenBySender unseen messages addressed to receiver, keyed by sender
	CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error)
}

type pgMessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository create a postgres MessageRepository
func NewMessageRepository(db *pgxpool.Pool) MessageRepository {
	return &pgMessageRepository{db: db}
}

func (r *pgMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO messages(id, sender_id, receiver_id, content, created_at, seen, seen_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt, msg.Seen, msg.SeenAt)
	return err
}

func (r *pgMessageRepository) FindConversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sender_id, receiver_id, content, created_at, seen, seen_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.Seen, &m.SeenAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = appendValid(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *pgMessageRepository) MarkSeen(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE messages SET seen = TRUE, seen_at = $3 WHERE sender_id = $1 AND receiver_id = $2 AND seen = FALSE",
		senderID, receiverID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgMessageRepository) CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		"SELECT sender_id, COUNT(*) FROM messages WHERE receiver_id = $1 AND seen = FALSE GROUP BY sender_id",
		receiverID)
	if err != nil {
		return nil, fmt.Errorf("count unseen: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

func appendValid(msgs []domain.Message, m domain.Message) []domain.Message {
	if err := m.Validate(); err != nil {
		logger.Log.Warn("skip invalid message row", zap.Error(err))
		return msgs
	}
	return append(msgs, m)
}

// SortByCreatedAt stable ascending order, equal timestamps keep their relative order
func SortByCreatedAt(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
