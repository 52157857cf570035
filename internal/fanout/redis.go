package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "uniportal:notifications"

// redisEnvelope is what travels over Pub/Sub: the target rooms plus the
// already encoded message so every instance replays it byte for byte.
type redisEnvelope struct {
	Rooms   []string        `json:"rooms"`
	Message json.RawMessage `json:"message"`
}

// RedisBroker fans messages out across API instances. Emit publishes to the
// shared channel and Run replays everything received into the local transport.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   Transport
	logger  *slog.Logger
}

func NewRedisBroker(client *redis.Client, channel string, local Transport, logger *slog.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, channel: channel, local: local, logger: logger}
}

// Emit falls back to the local transport when no Redis client is configured.
func (b *RedisBroker) Emit(ctx context.Context, rooms []string, msg []byte) error {
	if b.client == nil {
		return b.local.Emit(ctx, rooms, msg)
	}

	body, err := json.Marshal(redisEnvelope{Rooms: rooms, Message: msg})
	if err != nil {
		return fmt.Errorf("encode redis envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Run blocks until ctx is cancelled or the subscription fails.
func (b *RedisBroker) Run(ctx context.Context) error {
	if b.client == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("realtime_bridge_subscribed", "channel", b.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.replay(ctx, msg.Payload)
		}
	}
}

func (b *RedisBroker) replay(ctx context.Context, payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("realtime_bridge_decode_failed", "channel", b.channel, "error", err)
		return
	}
	if len(env.Rooms) == 0 || len(env.Message) == 0 {
		return
	}
	if err := b.local.Emit(ctx, env.Rooms, env.Message); err != nil {
		b.logger.Warn("realtime_bridge_local_emit_failed", "rooms", env.Rooms, "error", err)
	}
}

// RedisDeliveryCache keeps the newest messages per user in a capped list.
// A nil cache or client turns every call into a no-op.
type RedisDeliveryCache struct {
	client redis.Cmdable
	size   int64
	ttl    time.Duration
}

func NewRedisDeliveryCache(client redis.Cmdable, size int, ttl time.Duration) *RedisDeliveryCache {
	if size < 1 {
		size = 50
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisDeliveryCache{client: client, size: int64(size), ttl: ttl}
}

func deliveryKey(userID string) string {
	return fmt.Sprintf("notify:delivery:user:%s", userID)
}

func (c *RedisDeliveryCache) Append(ctx context.Context, userID string, msg []byte) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := deliveryKey(userID)

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, msg)
	pipe.LTrim(ctx, key, 0, c.size-1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append delivery cache for %s: %w", userID, err)
	}
	return nil
}

// Recent returns cached messages oldest first.
func (c *RedisDeliveryCache) Recent(ctx context.Context, userID string) ([][]byte, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	vals, err := c.client.LRange(ctx, deliveryKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read delivery cache for %s: %w", userID, err)
	}

	out := make([][]byte, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		out = append(out, []byte(vals[i]))
	}
	return out, nil
}
