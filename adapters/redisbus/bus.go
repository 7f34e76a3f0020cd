package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-login/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix       = "go-login"
	DefaultHistoryLimit = 100
	DefaultDedupTTL     = 10 * time.Minute
)

// Bus publishes login events on a redis channel and keeps a capped list of
// recent events. Event ids are claimed with SETNX so a redelivered event is
// published once.
type Bus struct {
	client       redis.UniversalClient
	prefix       string
	historyLimit int64
	dedupTTL     time.Duration
	keepTokens   bool
	logger       glog.Logger
}

type Option func(*Bus)

func WithPrefix(prefix string) Option {
	return func(b *Bus) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			b.prefix = trimmed
		}
	}
}

// WithHistoryLimit caps the recent event list. Zero disables history.
func WithHistoryLimit(limit int) Option {
	return func(b *Bus) {
		if limit >= 0 {
			b.historyLimit = int64(limit)
		}
	}
}

// WithDedupTTL sets how long an event id stays claimed. Zero disables
// deduplication.
func WithDedupTTL(ttl time.Duration) Option {
	return func(b *Bus) {
		if ttl >= 0 {
			b.dedupTTL = ttl
		}
	}
}

// WithContinuanceTokens publishes continuance tokens in clear text. By
// default they are replaced with core.RedactedValue on the channel and in
// the history list.
func WithContinuanceTokens() Option {
	return func(b *Bus) {
		b.keepTokens = true
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) (*Bus, error) {
	if client == nil {
		return nil, fmt.Errorf("redisbus: redis client is required")
	}
	bus := &Bus{
		client:       client,
		prefix:       DefaultPrefix,
		historyLimit: DefaultHistoryLimit,
		dedupTTL:     DefaultDedupTTL,
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(bus)
		}
	}
	return bus, nil
}

func (b *Bus) Channel() string {
	return b.prefix + ":events"
}

func (b *Bus) historyKey() string {
	return b.prefix + ":events:recent"
}

func (b *Bus) dedupKey(eventID string) string {
	return b.prefix + ":events:seen:" + eventID
}

func (b *Bus) Name() string {
	return "redisbus"
}

// OnEvent publishes event. It satisfies core.EventListener.
func (b *Bus) OnEvent(ctx context.Context, event core.LoginEvent) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("redisbus: bus is not configured")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return fmt.Errorf("redisbus: event id is required")
	}
	payload, err := json.Marshal(b.redact(event))
	if err != nil {
		return fmt.Errorf("redisbus: encode event: %w", err)
	}

	if b.dedupTTL > 0 {
		claimed, err := b.client.SetNX(ctx, b.dedupKey(eventID), 1, b.dedupTTL).Result()
		if err != nil {
			return fmt.Errorf("redisbus: claim event %s: %w", eventID, err)
		}
		if !claimed {
			b.logger.Debug("redisbus duplicate event skipped", "event_id", eventID)
			return nil
		}
	}

	pipe := b.client.Pipeline()
	pipe.Publish(ctx, b.Channel(), payload)
	if b.historyLimit > 0 {
		pipe.LPush(ctx, b.historyKey(), payload)
		pipe.LTrim(ctx, b.historyKey(), 0, b.historyLimit-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisbus: publish event %s: %w", eventID, err)
	}
	return nil
}

func (b *Bus) redact(event core.LoginEvent) core.LoginEvent {
	if event.ContinuanceToken != "" && !b.keepTokens {
		event.ContinuanceToken = core.RedactedValue
	}
	if len(event.Metadata) > 0 {
		event.Metadata = core.RedactSensitiveMap(event.Metadata)
	}
	return event
}

// Recent returns up to limit of the newest retained events, newest first.
func (b *Bus) Recent(ctx context.Context, limit int) ([]core.LoginEvent, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("redisbus: bus is not configured")
	}
	if limit <= 0 {
		limit = int(b.historyLimit)
	}
	if limit <= 0 {
		return []core.LoginEvent{}, nil
	}
	raw, err := b.client.LRange(ctx, b.historyKey(), 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []core.LoginEvent{}, nil
		}
		return nil, fmt.Errorf("redisbus: read recent events: %w", err)
	}
	events := make([]core.LoginEvent, 0, len(raw))
	for _, item := range raw {
		var event core.LoginEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("redisbus: decode recent event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Subscription delivers published events to a listener until closed.
type Subscription struct {
	pubsub    *redis.PubSub
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Subscribe confirms the subscription with the server before returning, so
// events published after Subscribe returns are delivered.
func (b *Bus) Subscribe(ctx context.Context, listener core.EventListener) (*Subscription, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("redisbus: bus is not configured")
	}
	if listener == nil {
		return nil, fmt.Errorf("redisbus: listener is required")
	}
	pubsub := b.client.Subscribe(ctx, b.Channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redisbus: subscribe: %w", err)
	}

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}
	messages := pubsub.Channel()
	go func() {
		defer close(sub.done)
		for msg := range messages {
			var event core.LoginEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("redisbus event decode failed", "error", err.Error())
				continue
			}
			if err := listener.OnEvent(context.Background(), event); err != nil {
				b.logger.Warn("redisbus listener failed",
					"listener", listener.Name(),
					"event_id", event.ID,
					"error", err.Error(),
				)
			}
		}
	}()
	return sub, nil
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (s *Subscription) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
		<-s.done
	})
	return s.closeErr
}

var _ core.EventListener = (*Bus)(nil)
