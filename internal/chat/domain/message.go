package domain

import (
	"fmt"
	"strings"
	"time"

	errprocess "direct_chat_service/pkg/err"
)

// DeliveryState local delivery status of a message composed in this session
type DeliveryState string

const (
	// DeliveryPending insert is in flight
	DeliveryPending DeliveryState = "pending"
	// DeliverySent insert acknowledged by the store
	DeliverySent DeliveryState = "sent"
	// DeliveryFailed insert rejected, the message stays in the view and may be retried
	DeliveryFailed DeliveryState = "failed"
)

// Message 一則私訊
type Message struct {
	ID         string     `json:"id" bson:"_id"`
	SenderID   string     `json:"sender_id" bson:"sender_id"`
	ReceiverID string     `json:"receiver_id" bson:"receiver_id"`
	Content    string     `json:"content" bson:"content"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	Seen       bool       `json:"seen" bson:"seen"`
	SeenAt     *time.Time `json:"seen_at,omitempty" bson:"seen_at,omitempty"`

	// Delivery is never stored
	Delivery DeliveryState `json:"delivery,omitempty" bson:"-"`
}

// Validate checks a row or event payload entering the process
func (m *Message) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fmt.Errorf("%w: message without id", errprocess.ErrInvalidRow)
	case m.SenderID == "" || m.ReceiverID == "":
		return fmt.Errorf("%w: message %s without sender or receiver", errprocess.ErrInvalidRow, m.ID)
	case m.SenderID == m.ReceiverID:
		return fmt.Errorf("%w: message %s sent to its own sender", errprocess.ErrInvalidRow, m.ID)
	case m.CreatedAt.IsZero():
		return fmt.Errorf("%w: message %s without created_at", errprocess.ErrInvalidRow, m.ID)
	}
	return nil
}

// Involves reports whether userID is sender or receiver
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Between reports whether the message belongs to the conversation of a and b, in either direction
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Peer returns the other party seen from self
func (m Message) Peer(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// MarkSeen flags the message seen once, a second call keeps the first seen_at
func (m *Message) MarkSeen(at time.Time) bool {
	if m.Seen {
		return false
	}
	m.Seen = true
	seenAt := at
	m.SeenAt = &seenAt
	return true
}

// Clone returns a copy that shares no pointers with m
func (m Message) Clone() Message {
	if m.SeenAt != nil {
		seenAt := *m.SeenAt
		m.SeenAt = &seenAt
	}
	return m
}

// RealtimeInsert the payload pushed on the messages change feed
type RealtimeInsert struct {
	Event string  `json:"event"`
	Table string  `json:"table"`
	New   Message `json:"new"`
}

const (
	// EventInsert change feed insert event
	EventInsert = "INSERT"
	// TableMessages change feed table name
	TableMessages = "messages"
)
