package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
)

const (
	publishTimeout = 2 * time.Second
	connectTimeout = 10 * time.Second
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Retry    RetryConfig // zero value selects DefaultRetryConfig
}

// RedisSink publishes events as JSON on a Redis channel so another process
// can follow conversions.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *observability.Logger
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(cfg RedisConfig, logger *observability.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	retryCfg := cfg.Retry
	if retryCfg == (RetryConfig{}) {
		retryCfg = DefaultRetryConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	err := retry(ctx, retryCfg, logger, "redis ping", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "pdf2cbz:events"
	}

	return &RedisSink{
		client:  client,
		channel: channel,
		logger:  logger.WithOperation("events.redis"),
	}, nil
}

// Emit implements domain.EventSink. Publishing failures are logged; they
// never fail a conversion.
func (s *RedisSink) Emit(ctx context.Context, event domain.StageEvent) {
	if err := s.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("stage", event.String()).Msg("Failed to publish event")
	}
}

// Publish sends one event and reports any error.
func (s *RedisSink) Publish(ctx context.Context, event domain.StageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe streams decoded events from the channel until ctx ends or the
// returned stop function is called.
func (s *RedisSink) Subscribe(ctx context.Context) (<-chan domain.StageEvent, func(), error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan domain.StageEvent, 16)
	done := make(chan struct{})
	msgs := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.StageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn().Err(err).Msg("Dropping malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		close(done)
		_ = sub.Close()
	}
	return out, stop, nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
