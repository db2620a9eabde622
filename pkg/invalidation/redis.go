package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the Pub/Sub channel for invalidation messages.
const DefaultChannel = "gateway:invalidations"

// Message is published for every invalidation.
type Message struct {
	Tags []string `json:"tags"`

	// Timestamp in Unix nanoseconds.
	Timestamp int64 `json:"timestamp"`
}

// RedisSink bumps a version key per tag and publishes a Message, so that
// renderers can either poll versions or listen on the channel.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithChannel sets the Pub/Sub channel.
func WithChannel(channel string) RedisOption {
	return func(s *RedisSink) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithRedisLogger sets the sink logger.
func WithRedisLogger(logger zerolog.Logger) RedisOption {
	return func(s *RedisSink) {
		s.logger = logger
	}
}

// NewRedisSink creates a sink on an existing client. The caller owns the client.
func NewRedisSink(client *redis.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		client:  client,
		channel: DefaultChannel,
		logger:  log.With().Str("component", "invalidation").Str("sink", "redis").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VersionKey returns the Redis key holding a tag's version.
func VersionKey(tag string) string {
	return "gateway:tag:" + tag + ":version"
}

// Invalidate increments each tag version and publishes one message, in a
// single pipeline.
func (s *RedisSink) Invalidate(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	payload, err := json.Marshal(Message{Tags: tags, Timestamp: time.Now().UnixNano()})
	if err != nil {
		return fmt.Errorf("marshal invalidation message: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, tag := range tags {
		pipe.Incr(ctx, VersionKey(tag))
	}
	pipe.Publish(ctx, s.channel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}

	s.logger.Debug().
		Str("channel", s.channel).
		Strs("tags", tags).
		Msg("Published invalidation")
	return nil
}

// Version returns the current version of tag; 0 if it was never invalidated.
func (s *RedisSink) Version(ctx context.Context, tag string) (int64, error) {
	v, err := s.client.Get(ctx, VersionKey(tag)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get tag version: %w", err)
	}
	return v, nil
}

// Subscribe calls fn for every message on the channel until ctx is done.
// It blocks; run it in its own goroutine.
func (s *RedisSink) Subscribe(ctx context.Context, fn func(Message)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for confirmation so no message published after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}

	s.logger.Info().Str("channel", s.channel).Msg("Subscribed to invalidation channel")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Invalidation subscription stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				s.logger.Warn().Msg("Invalidation channel closed")
				return nil
			}

			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				s.logger.Error().
					Err(err).
					Str("payload", msg.Payload).
					Msg("Failed to decode invalidation message")
				continue
			}
			fn(m)
		}
	}
}
