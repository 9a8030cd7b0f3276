package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MessagesChannel pub/sub channel carrying message insert events
const MessagesChannel = "realtime:public:messages"

// InsertHandler receives every valid insert event
type InsertHandler func(msg domain.Message)

// Subscription an open subscription, Close blocks until its listener stopped
type Subscription interface {
	Close() error
}

// Realtime the messages change feed
type Realtime interface {
	PublishInsert(ctx context.Context, msg domain.Message) error
	SubscribeInserts(ctx context.Context, handler InsertHandler) (Subscription, error)
}

// pubSubHealthCheck idle time after which a subscription pings the server
const pubSubHealthCheck = 30 * time.Second

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client        *redis.Client
	retryInterval time.Duration
	healthCheck   time.Duration
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client, retryInterval time.Duration) *RedisPubSub {
	if retryInterval <= 0 {
		retryInterval = 2 * time.Second
	}
	return &RedisPubSub{
		client:        client,
		retryInterval: retryInterval,
		healthCheck:   pubSubHealthCheck,
	}
}

// Publish 將 message 序列化後，發布到指定 channel
func (r *RedisPubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe 訂閱 channel，收到訊息後呼叫 handler 處理
// The subscription is confirmed before returning. A read error or an unanswered
// health-check ping drops the connection, which is re-established every
// retryInterval until ctx ends or Close is called.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	sub, err := r.subscribe(ctx, channel)
	if err != nil {
		cancel()
		return nil, err
	}

	s := newSubscription(cancel)
	go r.listen(ctx, channel, sub, handler, s.done)
	return s, nil
}

func (r *RedisPubSub) subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *RedisPubSub) listen(ctx context.Context, channel string, sub *redis.PubSub, handler func([]byte), done chan struct{}) {
	defer close(done)

	current := &activePubSub{ps: sub}
	// a blocked read only returns once its connection is closed
	stop := context.AfterFunc(ctx, current.close)
	defer stop()
	defer current.close()

	pinged := false
	for {
		msg, err := sub.ReceiveTimeout(ctx, r.healthCheck)
		if ctx.Err() != nil {
			logger.Log.Debug("subscription closed", zap.String("channel", channel))
			return
		}

		if err == nil {
			pinged = false
			if m, ok := msg.(*redis.Message); ok {
				handler([]byte(m.Payload))
			}
			continue
		}

		if isTimeout(err) && !pinged {
			if err = sub.Ping(ctx); err == nil {
				pinged = true
				continue
			}
		}

		logger.Log.Warn("subscription dropped, resubscribing", zap.String("channel", channel), zap.Error(err))
		sub.Close()
		if sub = r.resubscribe(ctx, channel); sub == nil || !current.swap(sub) {
			return
		}
		pinged = false
	}
}

// resubscribe retries every retryInterval, nil once ctx ends
func (r *RedisPubSub) resubscribe(ctx context.Context, channel string) *redis.PubSub {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retryInterval):
		}

		sub, err := r.subscribe(ctx, channel)
		if err == nil {
			logger.Log.Info("subscription restored", zap.String("channel", channel))
			return sub
		}
		logger.Log.Warn("resubscribe failed", zap.String("channel", channel), zap.Error(err))
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// activePubSub the connection a listener currently reads from
type activePubSub struct {
	mu     sync.Mutex
	ps     *redis.PubSub
	closed bool
}

// swap installs ps, false when the listener was closed meanwhile
func (a *activePubSub) swap(ps *redis.PubSub) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		ps.Close()
		return false
	}
	a.ps = ps
	return true
}

func (a *activePubSub) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.ps.Close()
}

// PublishInsert publishes msg as an insert event on MessagesChannel
func (r *RedisPubSub) PublishInsert(ctx context.Context, msg domain.Message) error {
	return r.Publish(ctx, MessagesChannel, domain.RealtimeInsert{
		Event: domain.EventInsert,
		Table: domain.TableMessages,
		New:   msg,
	})
}

// SubscribeInserts subscribes to MessagesChannel
func (r *RedisPubSub) SubscribeInserts(ctx context.Context, handler InsertHandler) (Subscription, error) {
	return r.Subscribe(ctx, MessagesChannel, func(payload []byte) {
		if msg, ok := decodeInsert(payload); ok {
			handler(msg)
		}
	})
}

// decodeInsert drops payloads that are not a valid messages insert
func decodeInsert(payload []byte) (domain.Message, bool) {
	var ev domain.RealtimeInsert
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Log.Warn("undecodable insert event", zap.Error(err))
		return domain.Message{}, false
	}
	if ev.Event != domain.EventInsert || ev.Table != domain.TableMessages {
		return domain.Message{}, false
	}
	if err := ev.New.Validate(); err != nil {
		logger.Log.Warn("invalid insert event", zap.Error(err))
		return domain.Message{}, false
	}
	ev.New.Delivery = ""
	return ev.New, true
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(cancel context.CancelFunc) *subscription {
	return &subscription{cancel: cancel, done: make(chan struct{})}
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
