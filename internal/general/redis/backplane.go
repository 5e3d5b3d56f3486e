// Package redis relays router broadcasts over a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"

	goredis "github.com/redis/go-redis/v9"
)

type Backplane struct {
	client  *goredis.Client
	channel string
	logger  *logger.Logger
}

var _ ports.Backplane = (*Backplane)(nil)

// Connect parses cfg.URL and pings the server once.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *logger.Logger) (*Backplane, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error(ctx, "redis_connect_failed", "Failed to reach Redis", err, map[string]any{"addr": opts.Addr})
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	logger.Info(ctx, "redis_connected", "Redis backplane connected", map[string]any{
		"addr": opts.Addr, "channel": cfg.Channel,
	})
	return NewBackplane(client, cfg.Channel, logger), nil
}

func NewBackplane(client *goredis.Client, channel string, logger *logger.Logger) *Backplane {
	return &Backplane{client: client, channel: channel, logger: logger}
}

func (bp *Backplane) Publish(ctx context.Context, b contracts.Broadcast) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	return bp.client.Publish(ctx, bp.channel, body).Err()
}

var errSubscriptionClosed = errors.New("redis: subscription channel closed")

// Subscribe blocks until ctx ends, re-subscribing with backoff whenever the
// subscription drops. Frames published during a gap are lost.
func (bp *Backplane) Subscribe(ctx context.Context, fn func(context.Context, contracts.Broadcast)) error {
	backoff := time.Second
	for {
		err := bp.subscribeOnce(ctx, fn, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return nil
		}
		bp.logger.Warn(ctx, "backplane_subscribe_restart", "Redis subscription stopped, retrying", map[string]any{
			"channel": bp.channel, "reason": err.Error(), "backoff_ms": backoff.Milliseconds(),
		})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// subscribeOnce runs one subscription until it fails or ctx ends. ready is
// called once the server confirmed the subscription.
func (bp *Backplane) subscribeOnce(ctx context.Context, fn func(context.Context, contracts.Broadcast), ready func()) error {
	sub := bp.client.Subscribe(ctx, bp.channel)
	defer sub.Close()

	// wait for the subscription confirmation so early publishes are not missed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", bp.channel, err)
	}
	ready()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return errSubscriptionClosed
			}
			b, err := decodeBroadcast(m.Payload)
			if err != nil {
				bp.logger.Warn(ctx, "backplane_bad_frame", "Dropping undecodable broadcast", map[string]any{"size": len(m.Payload)})
				continue
			}
			fn(ctx, b)
		}
	}
}

func decodeBroadcast(payload string) (contracts.Broadcast, error) {
	var b contracts.Broadcast
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return contracts.Broadcast{}, fmt.Errorf("decode broadcast: %w", err)
	}
	if b.Group == "" || len(b.Frame) == 0 {
		return contracts.Broadcast{}, errors.New("decode broadcast: missing group or frame")
	}
	return b, nil
}

func (bp *Backplane) Close() error {
	return bp.client.Close()
}
