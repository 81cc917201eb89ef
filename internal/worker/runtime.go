package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/ports"
	"github.com/atmikgoswami/mediaforge/internal/transform"
	"github.com/atmikgoswami/mediaforge/pkg/backoff"
)

const resultKeyPrefix = "results/"

type Config struct {
	ConsumerName string
	Concurrency  int
	ReceiveBlock time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Runtime runs a bounded set of slot loops against the broker. A slot
// leases one envelope at a time; a busy slot simply does not receive,
// which is all the backpressure the queue needs.
type Runtime struct {
	Broker   ports.Broker
	Status   ports.StatusStore
	Results  ports.ResultStore
	Sink     ports.Sink
	Registry transform.Registry
	Cfg      Config
}

func (r *Runtime) Run(ctx context.Context) error {
	concurrency := r.Cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	log.Ctx(ctx).Info().
		Int("slots", concurrency).
		Str("consumer", r.Cfg.ConsumerName).
		Msg("worker runtime starting")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		slot := i
		g.Go(func() error { return r.slotLoop(ctx, slot) })
	}
	return g.Wait()
}

func (r *Runtime) slotLoop(ctx context.Context, slot int) error {
	consumer := fmt.Sprintf("%s-%d", r.Cfg.ConsumerName, slot)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lease, err := r.Broker.Receive(ctx, consumer, r.Cfg.ReceiveBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Ctx(ctx).Err(err).Int("slot", slot).Msg("receive failed")
			continue
		}
		if lease == nil {
			continue
		}
		r.handle(ctx, lease)
	}
}

// handle owns one delivery end to end: idle → claimed → executing →
// acking/nacking → idle.
func (r *Runtime) handle(ctx context.Context, lease *ports.Lease) {
	env := &lease.Envelope
	env.AttemptCount++

	logger := log.Ctx(ctx).With().
		Str("task", env.ID).
		Str("kind", string(env.Kind)).
		Int("attempt", env.AttemptCount).
		Logger()

	// Transforms run third-party decoders on caller-supplied bytes. A
	// panicking decoder settles the delivery like any other permanent
	// failure instead of taking the slot loop down with it.
	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, lease, logger, domain.Permanent(fmt.Errorf("transform panic: %v", p)))
		}
	}()

	// Redelivery guard: if another slot already finalized this task,
	// the work is done and this delivery just gets consumed.
	if prior, err := r.Results.Get(ctx, env.ID); err == nil && prior != nil {
		logger.Info().Str("outcome", string(prior.Outcome)).Msg("task already finalized, skipping")
		_ = r.Broker.Ack(ctx, lease)
		return
	}

	_ = r.Status.SetStatus(ctx, env.ID, domain.StatusInProgress)
	_ = r.Status.SetProgress(ctx, env.ID, 10)

	outputRef, err := r.execute(ctx, env)
	if err != nil {
		r.fail(ctx, lease, logger, err)
		return
	}

	inserted, err := r.Results.Save(ctx, domain.Result{
		TaskID:     env.ID,
		Outcome:    domain.OutcomeSuccess,
		OutputRef:  outputRef,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		r.fail(ctx, lease, logger, domain.Transient(err))
		return
	}
	if !inserted {
		// Lost the finalize race to another slot after a lease expiry.
		// Its record stands; this slot discards its own write.
		logger.Info().Msg("lost finalize race, discarding duplicate result")
		_ = r.Broker.Ack(ctx, lease)
		return
	}

	_ = r.Status.SetStatus(ctx, env.ID, domain.StatusSucceeded)
	_ = r.Status.SetProgress(ctx, env.ID, 100)
	_ = r.Broker.Ack(ctx, lease)
	logger.Info().Str("output", outputRef).Msg("task succeeded")
}

func (r *Runtime) execute(ctx context.Context, env *domain.Envelope) (string, error) {
	t, ok := r.Registry.Lookup(env.Kind)
	if !ok {
		return "", domain.Permanent(fmt.Errorf("unsupported kind %q", env.Kind))
	}

	inputs := make([][]byte, len(env.Inputs))
	for i, ref := range env.Inputs {
		if ref.IsInline() {
			inputs[i] = ref.Inline
			continue
		}
		data, _, err := r.Sink.Download(ctx, ref.Key)
		if err != nil {
			return "", err
		}
		inputs[i] = data
	}
	if len(inputs) == 0 {
		return "", domain.Permanent(fmt.Errorf("envelope has no inputs"))
	}
	_ = r.Status.SetProgress(ctx, env.ID, 40)

	out, err := t.Apply(ctx, inputs, env.Params)
	if err != nil {
		return "", err
	}
	_ = r.Status.SetProgress(ctx, env.ID, 80)

	// Result keys derive from the task id, so re-running the same
	// envelope overwrites the same object rather than piling up copies.
	key := resultKeyPrefix + env.ID + out.Ext
	if err := r.Sink.Upload(ctx, key, out.ContentType, out.Data); err != nil {
		return "", err
	}
	return key, nil
}

func (r *Runtime) fail(ctx context.Context, lease *ports.Lease, logger zerolog.Logger, cause error) {
	env := &lease.Envelope

	if domain.ShouldDeadLetter(*env, cause) {
		if domain.ClassOf(cause) == domain.FailurePermanent {
			sentry.CaptureException(cause)
		}
		if _, err := r.Results.Save(ctx, domain.Result{
			TaskID:      env.ID,
			Outcome:     domain.OutcomeFailure,
			ErrorDetail: cause.Error(),
			FinishedAt:  time.Now().UTC(),
		}); err != nil {
			// Dead-lettering still proceeds; the record is what the
			// status API serves the error summary from.
			logger.Error().Err(err).Msg("failed to record terminal failure")
		}
		logger.Error().Err(cause).Msg("task failed terminally")
		_ = r.Broker.Nack(ctx, lease, cause)
		return
	}

	logger.Warn().Err(cause).Msg("task failed, will retry")
	wait := backoff.ExponentialJitter(r.Cfg.BaseBackoff, r.Cfg.MaxBackoff, env.AttemptCount)
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
	_ = r.Broker.Nack(ctx, lease, cause)
}
