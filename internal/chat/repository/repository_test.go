package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

type mockMessageRepository struct {
	mock.Mock
	MessageRepository
}

func (m *mockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockRealtime struct {
	mock.Mock
}

func (m *mockRealtime) PublishInsert(ctx context.Context, msg domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockRealtime) SubscribeInserts(ctx context.Context, handler InsertHandler) (Subscription, error) {
	args := m.Called(ctx, handler)
	return nil, args.Error(1)
}

func sampleMessage() domain.Message {
	return domain.Message{
		ID:         "m1",
		SenderID:   "a",
		ReceiverID: "b",
		Content:    "hello",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNotifyingMessageRepository_PublishesAfterInsert(t *testing.T) {
	ctx := context.Background()
	repo := new(mockMessageRepository)
	rt := new(mockRealtime)

	msg := sampleMessage()
	msg.Delivery = domain.DeliveryPending
	repo.On("Insert", ctx, &msg).Return(nil)
	rt.On("PublishInsert", ctx, mock.MatchedBy(func(m domain.Message) bool {
		return m.ID == "m1" && m.Delivery == ""
	})).Return(errors.New("redis down"))

	// a failed publish does not fail the insert
	require.NoError(t, NewNotifyingMessageRepository(repo, rt).Insert(ctx, &msg))
	repo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestNotifyingMessageRepository_NoPublishOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := new(mockMessageRepository)
	rt := new(mockRealtime)

	msg := sampleMessage()
	repo.On("Insert", ctx, &msg).Return(errors.New("duplicate key"))

	assert.Error(t, NewNotifyingMessageRepository(repo, rt).Insert(ctx, &msg))
	rt.AssertNotCalled(t, "PublishInsert", mock.Anything, mock.Anything)
}

func TestDecodeInsert(t *testing.T) {
	valid, err := json.Marshal(domain.RealtimeInsert{Event: domain.EventInsert, Table: domain.TableMessages, New: sampleMessage()})
	require.NoError(t, err)
	update, err := json.Marshal(domain.RealtimeInsert{Event: "UPDATE", Table: domain.TableMessages, New: sampleMessage()})
	require.NoError(t, err)
	bad := sampleMessage()
	bad.ReceiverID = bad.SenderID
	invalid, err := json.Marshal(domain.RealtimeInsert{Event: domain.EventInsert, Table: domain.TableMessages, New: bad})
	require.NoError(t, err)

	msg, ok := decodeInsert(valid)
	assert.True(t, ok)
	assert.Equal(t, "m1", msg.ID)

	for _, payload := range [][]byte{update, invalid, []byte("not json")} {
		_, ok := decodeInsert(payload)
		assert.False(t, ok, string(payload))
	}
}

func TestSortByCreatedAt_Stable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []domain.Message{
		{ID: "late", CreatedAt: base.Add(time.Minute)},
		{ID: "tie-1", CreatedAt: base},
		{ID: "tie-2", CreatedAt: base},
	}

	SortByCreatedAt(msgs)

	ids := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	assert.Equal(t, []string{"tie-1", "tie-2", "late"}, ids)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(&net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}))
	assert.False(t, isTimeout(io.EOF))
	assert.False(t, isTimeout(errors.New("connection reset by peer")))
}
