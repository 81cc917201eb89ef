package ports

import (
	"context"
	"time"

	"github.com/atmikgoswami/mediaforge/internal/domain"
)

// Lease is a time-bounded exclusive claim on one envelope. DeliveryID
// identifies the broker message so it can be acked or requeued.
type Lease struct {
	Envelope   domain.Envelope
	DeliveryID string
}

// Broker is the durable at-least-once queue. Redelivery of expired
// leases is the broker's job; execution on top of it must tolerate
// seeing the same envelope twice.
type Broker interface {
	// Enqueue persists the envelope before returning. It retries with
	// backoff inside a bounded window and reports ErrBrokerUnavailable
	// once the window closes; a failed enqueue means "not enqueued".
	Enqueue(ctx context.Context, e domain.Envelope) (string, error)
	// Receive blocks up to block for an available envelope. A nil lease
	// with nil error means nothing was ready.
	Receive(ctx context.Context, consumer string, block time.Duration) (*Lease, error)
	// Ack consumes the lease permanently. Acking twice is a no-op.
	Ack(ctx context.Context, l *Lease) error
	// Nack returns the envelope for redelivery, or routes it to the
	// dead-letter stream when cause is permanent or attempts are spent.
	Nack(ctx context.Context, l *Lease, cause error) error
	Ping(ctx context.Context) error
}

// StatusStore holds the coarse live view of non-terminal tasks.
type StatusStore interface {
	SetStatus(ctx context.Context, taskID string, s domain.Status) error
	SetProgress(ctx context.Context, taskID string, pct int) error
	Get(ctx context.Context, taskID string) (*domain.LiveStatus, error)
	Recent(ctx context.Context, offset, limit int) ([]domain.LiveStatus, int, error)
}

// ResultStore persists write-once terminal records.
type ResultStore interface {
	// Save inserts the record unless one already exists for the task.
	// The bool reports whether this call won the write.
	Save(ctx context.Context, r domain.Result) (bool, error)
	Get(ctx context.Context, taskID string) (*domain.Result, error)
	Ping(ctx context.Context) error
}

// Sink is the external object store for inputs and processed outputs.
type Sink interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Ping(ctx context.Context) error
}
