package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/types"
)

// publishTimeout bounds a publish made from the hub loop.
const publishTimeout = 2 * time.Second

// wireDelivery is what travels on the Redis channel. Origin lets a relay
// drop its own deliveries when they come back.
type wireDelivery struct {
	Origin   string         `json:"instance_id"`
	Delivery types.Delivery `json:"delivery"`
}

// RedisBridge fans deliveries out to every relay sharing a Redis channel.
type RedisBridge struct {
	rdb    *redis.Client
	topic  string
	origin string
	local  BroadcastTarget
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	up     atomic.Bool
}

// NewRedisBridge creates an unstarted bridge. local receives deliveries
// published by other relays.
func NewRedisBridge(cfg *RedisConfig, local BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	ctx, cancel := context.WithCancel(context.Background())
	origin := uuid.NewString()
	return &RedisBridge{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		topic:  cfg.Prefix + "deliveries",
		origin: origin,
		local:  local,
		logger: logger.With().Str("component", "redis-bridge").Str("instance_id", origin).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start checks Redis is reachable and subscribes to the deliveries channel.
func (b *RedisBridge) Start() error {
	if err := b.rdb.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	sub := b.rdb.Subscribe(b.ctx, b.topic)
	if _, err := sub.Receive(b.ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}

	b.up.Store(true)
	b.wg.Add(1)
	go b.relay(sub)

	b.logger.Info().Str("channel", b.topic).Msg("bridging deliveries")
	return nil
}

// Publish hands d to the other relays.
func (b *RedisBridge) Publish(d types.Delivery) error {
	payload, err := b.encode(d)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(b.ctx, publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", d.Envelope.Event, err)
	}
	return nil
}

func (b *RedisBridge) channel() string { return b.topic }

func (b *RedisBridge) encode(d types.Delivery) ([]byte, error) {
	payload, err := json.Marshal(wireDelivery{Origin: b.origin, Delivery: d})
	if err != nil {
		return nil, fmt.Errorf("encode delivery: %w", err)
	}
	return payload, nil
}

// Stop ends the subscription and closes the Redis client.
func (b *RedisBridge) Stop() error {
	b.up.Store(false)
	b.cancel()
	b.wg.Wait()
	return b.rdb.Close()
}

// Available reports whether the subscription is live.
func (b *RedisBridge) Available() bool { return b.up.Load() }

// relay feeds subscription messages to receive until Stop.
func (b *RedisBridge) relay(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				b.up.Store(false)
				b.logger.Warn().Msg("redis subscription closed")
				return
			}
			b.receive([]byte(msg.Payload))
		}
	}
}

// receive decodes one payload and passes deliveries from other relays
// to the local hub.
func (b *RedisBridge) receive(payload []byte) {
	var w wireDelivery
	if err := json.Unmarshal(payload, &w); err != nil {
		b.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping undecodable delivery")
		return
	}
	if w.Origin == b.origin {
		return
	}

	b.logger.Debug().
		Str("origin", w.Origin).
		Str("event", w.Delivery.Envelope.Event).
		Str("target", string(w.Delivery.Target.Kind)).
		Msg("delivery from peer relay")
	b.local.BroadcastToLocal(w.Delivery)
}
