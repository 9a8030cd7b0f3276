package database

import (
	"context"
	"fmt"
	"time"

	"direct_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 建立 Kafka Writer, a ping message confirms the broker accepts writes
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	var err error

	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		writer := &kafka.Writer{
			Addr:                   kafka.TCP(k.Brokers...),
			Topic:                  k.Topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}

		err = writer.WriteMessages(context.Background(), kafka.Message{
			Key:   []byte("ping"),
			Value: []byte("ping"),
		})
		if err == nil {
			logger.Log.Info("kafka writer ready", zap.String("topic", k.Topic), zap.Int("attempt", attempt))
			return writer, nil
		}

		logger.Log.Warn("kafka writer not ready, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max", k.RetryCount),
			zap.Error(err),
		)
		writer.Close()
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("kafka writer after %d attempts: %w", k.RetryCount, err)
}

// NewKafkaReader reads one topic from the newest offset
func NewKafkaReader(k KafkaConnection) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.Brokers,
		Topic:       k.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}
