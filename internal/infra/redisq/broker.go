package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/ports"
	"github.com/atmikgoswami/mediaforge/pkg/backoff"
)

var _ ports.Broker = (*Client)(nil)

// ErrBrokerUnavailable means the broker never confirmed persistence
// inside the retry window. The envelope was not enqueued.
var ErrBrokerUnavailable = errors.New("broker unavailable")

const (
	envelopeField = "envelope"
	reasonField   = "reason"

	enqueueBaseBackoff = 100 * time.Millisecond
	enqueueMaxBackoff  = time.Second
)

func (c *Client) Enqueue(ctx context.Context, e domain.Envelope) (string, error) {
	b, err := domain.Encode(e)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.enqueueMaxWait)
	var lastErr error
	for attempt := 1; ; attempt++ {
		id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: c.cfg.StreamKey,
			Values: map[string]interface{}{envelopeField: b},
		}).Result()
		if err == nil {
			_ = c.SetStatus(ctx, e.ID, domain.StatusQueued)
			_ = c.trackRecent(ctx, e.ID, e.CreatedAt)
			return id, nil
		}
		lastErr = err

		wait := backoff.ExponentialJitter(enqueueBaseBackoff, enqueueMaxBackoff, attempt)
		if time.Now().Add(wait).After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("enqueue %s: %w", e.ID, ctx.Err())
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("enqueue %s: %w: %v", e.ID, ErrBrokerUnavailable, lastErr)
}

func (c *Client) Receive(ctx context.Context, consumer string, block time.Duration) (*ports.Lease, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: consumer,
		Streams:  []string{c.cfg.StreamKey, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}

	msg := res[0].Messages[0]
	raw, err := rawEnvelope(msg)
	if err != nil {
		// Not even a recognisable entry; park it and move on.
		_ = c.deadLetterRaw(ctx, msg.ID, nil, err)
		return nil, nil
	}

	env, err := domain.Decode(raw)
	if err != nil {
		// Poison message. Decoding will never succeed, so it goes
		// straight to the dead-letter stream.
		_ = c.deadLetterRaw(ctx, msg.ID, raw, err)
		return nil, nil
	}
	return &ports.Lease{Envelope: env, DeliveryID: msg.ID}, nil
}

// Ack consumes the delivery. XACK of an unknown or already-acked entry
// is a no-op on the server, which gives us idempotence for free.
func (c *Client) Ack(ctx context.Context, l *ports.Lease) error {
	return c.rdb.XAck(ctx, c.cfg.StreamKey, c.cfg.Group, l.DeliveryID).Err()
}

func (c *Client) Nack(ctx context.Context, l *ports.Lease, cause error) error {
	if domain.ShouldDeadLetter(l.Envelope, cause) {
		return c.deadLetter(ctx, l, cause)
	}

	// Redeliver: fresh copy carrying the current attempt count, then
	// retire the old delivery from the pending list.
	b, err := domain.Encode(l.Envelope)
	if err != nil {
		return err
	}
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.StreamKey,
		Values: map[string]interface{}{envelopeField: b},
	}).Err(); err != nil {
		return fmt.Errorf("requeue %s: %w", l.Envelope.ID, err)
	}
	_ = c.rdb.XAck(ctx, c.cfg.StreamKey, c.cfg.Group, l.DeliveryID).Err()
	_ = c.SetStatus(ctx, l.Envelope.ID, domain.StatusQueued)
	return nil
}

func (c *Client) deadLetter(ctx context.Context, l *ports.Lease, cause error) error {
	b, err := domain.Encode(l.Envelope)
	if err != nil {
		return err
	}
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStreamKey,
		Values: map[string]interface{}{
			envelopeField: b,
			reasonField:   cause.Error(),
		},
	}).Err(); err != nil {
		return fmt.Errorf("dead-letter %s: %w", l.Envelope.ID, err)
	}
	_ = c.rdb.XAck(ctx, c.cfg.StreamKey, c.cfg.Group, l.DeliveryID).Err()
	_ = c.SetStatus(ctx, l.Envelope.ID, domain.StatusFailed)

	log.Ctx(ctx).Warn().
		Str("task", l.Envelope.ID).
		Str("kind", string(l.Envelope.Kind)).
		Int("attempts", l.Envelope.AttemptCount).
		Msgf("envelope dead-lettered: %s", cause)
	return nil
}

// deadLetterRaw parks bytes that never decoded into an envelope.
func (c *Client) deadLetterRaw(ctx context.Context, deliveryID string, raw []byte, cause error) error {
	values := map[string]interface{}{reasonField: cause.Error()}
	if raw != nil {
		values[envelopeField] = raw
	}
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStreamKey,
		Values: values,
	}).Err(); err != nil {
		return err
	}
	return c.rdb.XAck(ctx, c.cfg.StreamKey, c.cfg.Group, deliveryID).Err()
}

func rawEnvelope(msg redis.XMessage) ([]byte, error) {
	switch v := msg.Values[envelopeField].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected envelope field type: %T", v)
	}
}
