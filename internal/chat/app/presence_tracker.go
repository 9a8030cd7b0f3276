package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// PresenceTracker announces the session user on the presence channel and
// mirrors the channel's member set as the Online Set.
type PresenceTracker struct {
	channel   repository.PresenceChannel
	selfID    string
	heartbeat time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	online    map[string]struct{}
	listeners []func([]string)
	sub       repository.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPresenceTracker create PresenceTracker, a heartbeat <= 0 tracks only once
func NewPresenceTracker(channel repository.PresenceChannel, selfID string, heartbeat, timeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		channel:   channel,
		selfID:    selfID,
		heartbeat: heartbeat,
		timeout:   timeout,
		now:       time.Now,
		online:    map[string]struct{}{},
	}
}

// Enter subscribes to sync notifications, then tracks {online_at}
func (p *PresenceTracker) Enter(ctx context.Context) error {
	p.mu.Lock()
	if p.sub != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	subCtx, cancel := context.WithCancel(context.Background())
	sub, err := p.channel.SubscribeSync(subCtx, p.sync)
	if err != nil {
		cancel()
		return fmt.Errorf("presence subscribe: %w", err)
	}

	if err := p.track(ctx); err != nil {
		cancel()
		sub.Close()
		return err
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.sub = sub
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.heartbeatLoop(subCtx, done)
	return nil
}

func (p *PresenceTracker) track(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.channel.Track(ctx, p.selfID, domain.PresenceRecord{OnlineAt: p.now().UTC()}); err != nil {
		return fmt.Errorf("presence track: %w", err)
	}
	return nil
}

func (p *PresenceTracker) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if p.heartbeat <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.track(ctx); err != nil && ctx.Err() == nil {
				logger.Log.Warn("presence heartbeat", zap.String("user_id", p.selfID), zap.Error(err))
			}
		}
	}
}

// sync replaces the Online Set with exactly the reported members
func (p *PresenceTracker) sync(members []string) {
	online := make(map[string]struct{}, len(members))
	for _, m := range members {
		online[m] = struct{}{}
	}

	p.mu.Lock()
	p.online = online
	listeners := append([]func([]string){}, p.listeners...)
	p.mu.Unlock()

	set := p.OnlineSet()
	for _, fn := range listeners {
		fn(set)
	}
}

// Leave untracks the local record before closing the subscription
func (p *PresenceTracker) Leave(ctx context.Context) error {
	p.mu.Lock()
	sub, cancel, done := p.sub, p.cancel, p.done
	p.sub, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()

	if sub == nil {
		return nil
	}

	untrackCtx, untrackCancel := context.WithTimeout(ctx, p.timeout)
	err := p.channel.Untrack(untrackCtx, p.selfID)
	untrackCancel()
	if err != nil {
		logger.Log.Warn("presence untrack", zap.String("user_id", p.selfID), zap.Error(err))
	}

	cancel()
	sub.Close()
	<-done
	return err
}

// OnlineSet sorted member keys of the last sync
func (p *PresenceTracker) OnlineSet() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := make([]string, 0, len(p.online))
	for id := range p.online {
		set = append(set, id)
	}
	sort.Strings(set)
	return set
}

// IsOnline reports membership in the Online Set
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// OnChange registers fn for every sync
func (p *PresenceTracker) OnChange(fn func(online []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}
