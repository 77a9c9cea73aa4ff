package websocket

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	redisclient "github.com/astroveda/consult/internal/redis"
)

// RedisBus relays frames between instances over Redis pub/sub, one channel
// per session.
type RedisBus struct {
	redis  *redisclient.Client
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedisBus(client *redisclient.Client) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		redis:  client,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *RedisBus) Publish(ctx context.Context, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, redisclient.SignalChannel(frame.SessionID), data).Err()
}

func (b *RedisBus) Subscribe(sessionID string, deliver func(Frame)) func() {
	ctx, cancel := context.WithCancel(b.ctx)
	channel := redisclient.SignalChannel(sessionID)
	pubsub := b.redis.Subscribe(ctx, channel)

	go func() {
		defer pubsub.Close()

		log.Debug().
			Str("sessionId", sessionID).
			Str("channel", channel).
			Msg("redis pubsub subscribed")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return

			case msg, ok := <-ch:
				if !ok {
					return
				}

				var frame Frame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal frame")
					continue
				}

				deliver(frame)
			}
		}
	}()

	return cancel
}

func (b *RedisBus) Close() {
	b.cancel()
}
