// Package redisadapter fans scan completion events out over Redis pub/sub.
package redisadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"previa/internal/ports"
)

// CompletionChannel is the pub/sub channel completion events are published on.
const CompletionChannel = "previa:scan:completed"

type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL            string
	Channel        string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// Publisher implements ports.CompletionPublisher.
type Publisher struct {
	client  *goredis.Client
	channel string
}

var _ ports.CompletionPublisher = (*Publisher)(nil)

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Channel == "" {
		opts.Channel = CompletionChannel
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout
	client := goredis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Publisher{client: client, channel: opts.Channel}, nil
}

func (p *Publisher) PublishCompletion(ctx context.Context, ev ports.CompletionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe streams completion events until ctx is done. Malformed payloads
// are logged and skipped.
func (p *Publisher) Subscribe(ctx context.Context, logger *slog.Logger) (<-chan ports.CompletionEvent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := p.client.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", p.channel, err)
	}

	out := make(chan ports.CompletionEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev ports.CompletionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("skipping malformed completion event", "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *Publisher) Close() error { return p.client.Close() }
