package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BridgeChannel is the Redis pub/sub channel shared by all replicas.
const BridgeChannel = "rt:events"

type envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// RedisBridge relays events between replicas over Redis pub/sub.  Each
// replica skips the echo of its own publishes.
type RedisBridge struct {
	rdb      *redis.Client
	instance string
	log      *zap.Logger
}

func NewRedisBridge(rdb *redis.Client, log *zap.Logger) *RedisBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBridge{rdb: rdb, instance: uuid.NewString(), log: log}
}

func (b *RedisBridge) Forward(ctx context.Context, key ChannelKey, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{
		Origin:  b.instance,
		Channel: key.String(),
		Kind:    ev.Kind,
		Payload: payload,
		At:      ev.At,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return b.rdb.Publish(ctx, BridgeChannel, body).Err()
}

// Run subscribes to the bridge channel and delivers remote events to r
// until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, r *Router) error {
	sub := b.rdb.Subscribe(ctx, BridgeChannel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(r, []byte(m.Payload))
		}
	}
}

func (b *RedisBridge) handle(r *Router, body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		b.log.Warn("realtime bridge: bad envelope", zap.Error(err))
		return
	}
	if env.Origin == b.instance {
		return
	}
	key, err := ParseChannelKey(env.Channel)
	if err != nil {
		b.log.Warn("realtime bridge: bad channel", zap.String("channel", env.Channel))
		return
	}
	ev := Event{Kind: env.Kind, Channel: env.Channel, At: env.At}
	if len(env.Payload) > 0 {
		ev.Payload = env.Payload
	}
	r.Deliver(key, ev)
}
