package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RedisSignals reads burst events from a Redis pub/sub channel.
// Payloads use the same JSON as the websocket feed.
type RedisSignals struct {
	client  *redis.Client
	channel string
	symbol  string
	out     chan Signal
	logger  zerolog.Logger
}

// NewRedisSignals connects lazily; the first command dials
func NewRedisSignals(redisURL, channel, symbol string) (*RedisSignals, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return &RedisSignals{
		client:  redis.NewClient(opts),
		channel: channel,
		symbol:  strings.ToUpper(symbol),
		out:     make(chan Signal, 64),
		logger:  log.With().Str("component", "redis-signals").Logger(),
	}, nil
}

// Signals delivers parsed signals
func (r *RedisSignals) Signals() <-chan Signal {
	return r.out
}

// Run subscribes and forwards signals until ctx is done, resubscribing after failures
func (r *RedisSignals) Run(ctx context.Context) error {
	defer r.client.Close()

	for {
		if err := r.subscribe(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("Redis subscription lost, retrying...")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *RedisSignals) subscribe(ctx context.Context) error {
	var pubsub *redis.PubSub
	if strings.ContainsAny(r.channel, "*?[") {
		pubsub = r.client.PSubscribe(ctx, r.channel)
	} else {
		pubsub = r.client.Subscribe(ctx, r.channel)
	}
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("📡 Redis signals subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis: channel %s closed", r.channel)
			}
			sig, ok := ParseSignal([]byte(msg.Payload), r.symbol)
			if !ok {
				continue
			}
			select {
			case r.out <- sig:
			case <-ctx.Done():
				return nil
			default:
				r.logger.Warn().Msg("Signal channel full, dropping")
			}
		}
	}
}

// Publish sends a manual signal to the channel
func (r *RedisSignals) Publish(ctx context.Context, delta decimal.Decimal) error {
	payload, err := EncodeSignal(r.symbol, delta)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", r.channel, err)
	}
	return nil
}

// Close releases the connection; Run closes it on exit by itself
func (r *RedisSignals) Close() error {
	return r.client.Close()
}
