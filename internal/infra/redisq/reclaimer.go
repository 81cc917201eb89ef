package redisq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/ports"
)

// Reclaimer re-exposes deliveries whose lease ran out: entries sitting
// in the consumer group's pending list longer than the lease duration
// are re-added to the stream for another slot, which is what makes
// delivery at-least-once when a worker dies mid-task.
type Reclaimer struct {
	C        *Client
	Results  ports.ResultStore
	Consumer string
	LeaseDur time.Duration
	Interval time.Duration
}

func NewReclaimer(c *Client, results ports.ResultStore, consumer string, leaseDur, interval time.Duration) *Reclaimer {
	return &Reclaimer{C: c, Results: results, Consumer: consumer, LeaseDur: leaseDur, Interval: interval}
}

func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		if n, err := r.reclaimExpired(ctx); err != nil {
			log.Ctx(ctx).Err(err).Msg("lease reclaim pass failed")
		} else if n > 0 {
			log.Ctx(ctx).Info().Int("count", n).Msg("redelivered expired leases")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// advanceAttempt counts an expired lease as a consumed attempt and
// reports whether the envelope has spent them all. A worker that keeps
// dying mid-task never nacks, so this is the only place those attempts
// get charged.
func advanceAttempt(env domain.Envelope) (domain.Envelope, bool) {
	env.AttemptCount++
	return env, env.AttemptCount >= env.MaxAttempts
}

// reclaimExpired walks the pending entries list with XAUTOCLAIM,
// taking over messages idle past the lease duration. Each one is
// re-added as a fresh delivery carrying the charged attempt and the
// stale one acked away; an envelope out of attempts dead-letters
// instead of circulating forever.
func (r *Reclaimer) reclaimExpired(ctx context.Context) (int, error) {
	next := "0-0"
	count := 0
	for {
		msgs, start, err := r.C.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.C.cfg.StreamKey,
			Group:    r.C.cfg.Group,
			Consumer: r.Consumer,
			MinIdle:  r.LeaseDur,
			Start:    next,
			Count:    64,
		}).Result()
		if err != nil {
			return count, err
		}

		for _, msg := range msgs {
			raw, rawErr := rawEnvelope(msg)
			if rawErr != nil {
				_ = r.C.deadLetterRaw(ctx, msg.ID, nil, rawErr)
				continue
			}
			env, decErr := domain.Decode(raw)
			if decErr != nil {
				_ = r.C.deadLetterRaw(ctx, msg.ID, raw, decErr)
				continue
			}

			_ = r.C.SetStatus(ctx, env.ID, domain.StatusAbandoned)

			env, exhausted := advanceAttempt(env)
			if exhausted {
				r.deadLetterExhausted(ctx, env, msg.ID)
				continue
			}

			b, encErr := domain.Encode(env)
			if encErr != nil {
				continue
			}
			if err := r.C.rdb.XAdd(ctx, &redis.XAddArgs{
				Stream: r.C.cfg.StreamKey,
				Values: map[string]interface{}{envelopeField: b},
			}).Err(); err != nil {
				// Leave the entry pending; the next pass retries it.
				continue
			}
			_ = r.C.rdb.XAck(ctx, r.C.cfg.StreamKey, r.C.cfg.Group, msg.ID).Err()
			_ = r.C.SetStatus(ctx, env.ID, domain.StatusQueued)
			count++
		}

		if len(msgs) == 0 || start == "0-0" {
			return count, nil
		}
		next = start
	}
}

func (r *Reclaimer) deadLetterExhausted(ctx context.Context, env domain.Envelope, deliveryID string) {
	cause := fmt.Errorf("attempts exhausted by repeated lease expiry")
	if r.Results != nil {
		if _, err := r.Results.Save(ctx, domain.Result{
			TaskID:      env.ID,
			Outcome:     domain.OutcomeFailure,
			ErrorDetail: cause.Error(),
			FinishedAt:  time.Now().UTC(),
		}); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("task", env.ID).Msg("failed to record terminal failure")
		}
	}
	_ = r.C.deadLetter(ctx, &ports.Lease{Envelope: env, DeliveryID: deliveryID}, cause)
}
