package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/utils"
)

// RedisWakeBus is the pub/sub alternative to LISTEN/NOTIFY for deployments
// where workers reach Postgres through a transaction pooler.
type RedisWakeBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string

	mu   sync.Mutex
	sub  *goredis.PubSub
	msgs <-chan *goredis.Message
}

func NewRedisWakeBus(log *logger.Logger, channel string) (*RedisWakeBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if strings.TrimSpace(channel) == "" {
		channel = "queue_wake"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisWakeBus{
		log:     log.With("service", "RedisWakeBus", "channel", channel),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *RedisWakeBus) Publish(ctx context.Context, payload string) error {
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisWakeBus) ensureSub(ctx context.Context) <-chan *goredis.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		b.sub = b.rdb.Subscribe(ctx, b.channel)
		b.msgs = b.sub.Channel()
	}
	return b.msgs
}

func (b *RedisWakeBus) Wait(ctx context.Context, timeout time.Duration) []string {
	msgs := b.ensureSub(ctx)
	t := time.NewTimer(timeout)
	defer t.Stop()

	var payloads []string
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
		return nil
	case m, ok := <-msgs:
		if !ok {
			return nil
		}
		payloads = append(payloads, m.Payload)
	}
	// Drain without blocking.
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return payloads
			}
			payloads = append(payloads, m.Payload)
		default:
			return payloads
		}
	}
}

func (b *RedisWakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		_ = b.sub.Close()
		b.sub = nil
	}
	return b.rdb.Close()
}
