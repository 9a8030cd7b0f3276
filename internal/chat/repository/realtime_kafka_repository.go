package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaRealtime the messages change feed on a single-partition kafka topic
// Every subscriber reads the topic from the newest offset without a consumer group,
// so each session sees every insert.
type KafkaRealtime struct {
	writer        *kafka.Writer
	newReader     func() *kafka.Reader
	retryInterval time.Duration
}

// NewKafkaRealtime create KafkaRealtime
func NewKafkaRealtime(writer *kafka.Writer, newReader func() *kafka.Reader, retryInterval time.Duration) *KafkaRealtime {
	if retryInterval <= 0 {
		retryInterval = 2 * time.Second
	}
	return &KafkaRealtime{writer: writer, newReader: newReader, retryInterval: retryInterval}
}

// PublishInsert writes msg keyed by its id
func (k *KafkaRealtime) PublishInsert(ctx context.Context, msg domain.Message) error {
	data, err := json.Marshal(domain.RealtimeInsert{
		Event: domain.EventInsert,
		Table: domain.TableMessages,
		New:   msg,
	})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.ID), Value: data})
}

// SubscribeInserts starts a reader goroutine, read errors other than cancellation reopen the reader
func (k *KafkaRealtime) SubscribeInserts(ctx context.Context, handler InsertHandler) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := newSubscription(cancel)

	go func() {
		defer close(s.done)
		reader := k.newReader()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				reader.Close()
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				logger.Log.Warn("kafka read failed, reopening reader", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(k.retryInterval):
				}
				reader = k.newReader()
				continue
			}
			if msg, ok := decodeInsert(m.Value); ok {
				handler(msg)
			}
		}
	}()

	return s, nil
}
