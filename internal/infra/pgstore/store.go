package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/ports"
)

var _ ports.ResultStore = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{db: pool}, nil
}

// Save inserts the terminal record for a task. The insert is
// conditional on no prior record existing, so the first finalizer wins
// and a redelivered duplicate cannot clobber it. Returns whether this
// call wrote the row.
func (s *Store) Save(ctx context.Context, r domain.Result) (bool, error) {
	tag, err := s.db.Exec(ctx, `insert into results(
task_id, outcome, output_ref, error_detail, finished_at
) values ($1,$2,$3,$4,$5)
on conflict (task_id) do nothing`,
		r.TaskID, string(r.Outcome), r.OutputRef, r.ErrorDetail, r.FinishedAt,
	)
	if err != nil {
		return false, fmt.Errorf("save result %s: %w", r.TaskID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, taskID string) (*domain.Result, error) {
	var (
		r       domain.Result
		outcome string
	)
	err := s.db.QueryRow(ctx,
		`select task_id, outcome, output_ref, error_detail, finished_at
		   from results where task_id = $1`, taskID,
	).Scan(&r.TaskID, &outcome, &r.OutputRef, &r.ErrorDetail, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get result %s: %w", taskID, err)
	}
	r.Outcome = domain.Outcome(outcome)
	return &r, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() { s.db.Close() }
