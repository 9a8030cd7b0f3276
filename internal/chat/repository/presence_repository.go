package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PresenceChannel a shared presence channel keyed by member key
type PresenceChannel interface {
	Track(ctx context.Context, key string, record domain.PresenceRecord) error
	Untrack(ctx context.Context, key string) error
	// Members current member keys, sorted
	Members(ctx context.Context) ([]string, error)
	// SubscribeSync delivers the full member set once on subscribe and after every change
	SubscribeSync(ctx context.Context, handler func(members []string)) (Subscription, error)
}

type redisPresenceChannel struct {
	client     *redis.Client
	pubsub     *RedisPubSub
	hashKey    string
	syncTopic  string
	staleAfter time.Duration
	now        func() time.Time
}

// NewRedisPresenceChannel members live in a redis hash, changes are announced on a pub/sub topic
func NewRedisPresenceChannel(client *redis.Client, pubsub *RedisPubSub, name string, staleAfter time.Duration) PresenceChannel {
	return &redisPresenceChannel{
		client:     client,
		pubsub:     pubsub,
		hashKey:    "presence:" + name,
		syncTopic:  "presence:" + name + ":sync",
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (p *redisPresenceChannel) Track(ctx context.Context, key string, record domain.PresenceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := p.client.HSet(ctx, p.hashKey, key, data).Err(); err != nil {
		return fmt.Errorf("track %s: %w", key, err)
	}
	return p.pubsub.Publish(ctx, p.syncTopic, "track")
}

func (p *redisPresenceChannel) Untrack(ctx context.Context, key string) error {
	if err := p.client.HDel(ctx, p.hashKey, key).Err(); err != nil {
		return fmt.Errorf("untrack %s: %w", key, err)
	}
	return p.pubsub.Publish(ctx, p.syncTopic, "untrack")
}

// Members prunes records older than staleAfter, they belong to sessions that died without untracking
func (p *redisPresenceChannel) Members(ctx context.Context) ([]string, error) {
	all, err := p.client.HGetAll(ctx, p.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}

	now := p.now()
	members := make([]string, 0, len(all))
	var stale []string
	for key, raw := range all {
		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			stale = append(stale, key)
			continue
		}
		if p.staleAfter > 0 && now.Sub(rec.OnlineAt) > p.staleAfter {
			stale = append(stale, key)
			continue
		}
		members = append(members, key)
	}

	if len(stale) > 0 {
		if err := p.client.HDel(ctx, p.hashKey, stale...).Err(); err != nil {
			logger.Log.Warn("prune stale presence failed", zap.Strings("keys", stale), zap.Error(err))
		}
	}

	sort.Strings(members)
	return members, nil
}

func (p *redisPresenceChannel) SubscribeSync(ctx context.Context, handler func(members []string)) (Subscription, error) {
	sync := func() {
		members, err := p.Members(ctx)
		if err != nil {
			logger.Log.Warn("presence sync failed", zap.Error(err))
			return
		}
		handler(members)
	}

	sub, err := p.pubsub.Subscribe(ctx, p.syncTopic, func([]byte) { sync() })
	if err != nil {
		return nil, err
	}
	sync()
	return sub, nil
}
