package notify

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/infra"
)

// RedisBus fans job-available signals out to worker processes over Redis
// pub/sub. Subscribed messages are forwarded into a coalescing wake channel.
type RedisBus struct {
	log     infra.Logger
	rdb     *goredis.Client
	channel string
	wake    chan struct{}
	cancel  context.CancelFunc
}

func NewRedisBus(addr, channel string, log infra.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("notify: redis address is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("notify: redis channel is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	bus := &RedisBus{
		log:     log,
		rdb:     rdb,
		channel: channel,
		wake:    make(chan struct{}, 1),
		cancel:  stop,
	}
	go bus.forward(ctx)
	return bus, nil
}

func (b *RedisBus) forward(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			_ = msg
			select {
			case b.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context) error {
	if err := b.rdb.Publish(ctx, b.channel, "job").Err(); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Wake() <-chan struct{} {
	return b.wake
}

func (b *RedisBus) Close() error {
	b.cancel()
	return b.rdb.Close()
}

var _ Bus = (*RedisBus)(nil)
