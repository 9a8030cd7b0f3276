package domain

import (
	"testing"
	"time"

	errprocess "direct_chat_service/pkg/err"

	"github.com/stretchr/testify/assert"
)

func TestMessage_MarkSeenIsIdempotent(t *testing.T) {
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := Message{ID: "m1", SenderID: "u2", ReceiverID: "u1", CreatedAt: first}

	assert.True(t, m.MarkSeen(first))
	assert.False(t, m.MarkSeen(first.Add(time.Minute)))
	assert.True(t, m.Seen)
	assert.Equal(t, first, *m.SeenAt)
}

func TestMessage_Parties(t *testing.T) {
	m := Message{ID: "m1", SenderID: "u1", ReceiverID: "u2"}

	assert.True(t, m.Involves("u1"))
	assert.True(t, m.Involves("u2"))
	assert.False(t, m.Involves("u3"))

	assert.True(t, m.Between("u1", "u2"))
	assert.True(t, m.Between("u2", "u1"))
	assert.False(t, m.Between("u1", "u3"))

	assert.Equal(t, "u2", m.Peer("u1"))
	assert.Equal(t, "u1", m.Peer("u2"))
}

func TestMessage_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"valid", Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", CreatedAt: now}, true},
		{"no id", Message{SenderID: "u1", ReceiverID: "u2", CreatedAt: now}, false},
		{"no receiver", Message{ID: "m1", SenderID: "u1", CreatedAt: now}, false},
		{"self message", Message{ID: "m1", SenderID: "u1", ReceiverID: "u1", CreatedAt: now}, false},
		{"no timestamp", Message{ID: "m1", SenderID: "u1", ReceiverID: "u2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errprocess.ErrInvalidRow)
			}
		})
	}
}

func TestMessage_CloneDetachesSeenAt(t *testing.T) {
	at := time.Now()
	m := Message{ID: "m1", SeenAt: &at}
	c := m.Clone()
	*c.SeenAt = at.Add(time.Hour)
	assert.Equal(t, at, *m.SeenAt)
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "Bob", User{ID: "u2", Name: " Bob ", Email: "bob@x.io"}.DisplayName())
	assert.Equal(t, "bob@x.io", User{ID: "u2", Email: "bob@x.io"}.DisplayName())

	u := User{ID: ""}
	assert.ErrorIs(t, u.Validate(), errprocess.ErrInvalidRow)
}
