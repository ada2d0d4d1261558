package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"shakerisk/internal/types"
)

// CalcRepository provides data access for the calc_runs table: the registry
// of hazard calculations keyed by their cache fingerprint. The cache
// controller consults it to detect registry/snapshot inconsistencies and to
// keep an auditable run history.
type CalcRepository struct {
	db DBTX
}

// NewCalcRepository creates a CalcRepository backed by the given database
// connection (pool or transaction).
func NewCalcRepository(db DBTX) *CalcRepository {
	return &CalcRepository{db: db}
}

const calcColumns = `id, cache_key, status, created_at, completed_at, failure_reason, curve_count`

func scanCalcRun(row pgx.Row) (*types.CalcRun, error) {
	var run types.CalcRun
	var failureReason *string
	err := row.Scan(
		&run.ID,
		&run.CacheKey,
		&run.Status,
		&run.CreatedAt,
		&run.CompletedAt,
		&failureReason,
		&run.CurveCount,
	)
	if err != nil {
		return nil, err
	}
	if failureReason != nil {
		run.FailureReason = *failureReason
	}
	return &run, nil
}

// Create inserts a new run record. The caller must set the ID, CacheKey and
// Status before calling.
func (r *CalcRepository) Create(ctx context.Context, run *types.CalcRun) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO calc_runs (id, cache_key, status, created_at, curve_count)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()), $5)`,
		run.ID,
		run.CacheKey,
		run.Status,
		nilIfZeroTime(run.CreatedAt),
		run.CurveCount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create calculation run", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrCodeNotFoundRun if no such
// run exists.
func (r *CalcRepository) GetByID(ctx context.Context, id string) (*types.CalcRun, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+calcColumns+` FROM calc_runs WHERE id = $1`,
		id,
	)
	run, err := scanCalcRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRun, "calculation run not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve calculation run", err)
	}
	return run, nil
}

// FindCompleteByKey returns the most recent complete run for a cache key, or
// nil when no complete run exists. A nil result is not an error: it is the
// normal cold-cache case.
func (r *CalcRepository) FindCompleteByKey(ctx context.Context, key string) (*types.CalcRun, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+calcColumns+`
		 FROM calc_runs
		 WHERE cache_key = $1 AND status = 'complete'
		 ORDER BY completed_at DESC
		 LIMIT 1`,
		key,
	)
	run, err := scanCalcRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up calculation run by key", err)
	}
	return run, nil
}

// MarkComplete transitions a running run to complete and records how many
// curves it produced. Returns ErrCodeNotFoundRun if the run does not exist
// or is not running.
func (r *CalcRepository) MarkComplete(ctx context.Context, id string, curveCount int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE calc_runs SET
			status = 'complete',
			completed_at = NOW(),
			curve_count = $1
		 WHERE id = $2 AND status = 'running'`,
		curveCount, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark calculation run complete", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRun, "calculation run not found or not running", nil)
	}
	return nil
}

// MarkFailed transitions a running run to failed with a reason.
func (r *CalcRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE calc_runs SET
			status = 'failed',
			completed_at = NOW(),
			failure_reason = $1
		 WHERE id = $2 AND status = 'running'`,
		reason, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark calculation run failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRun, "calculation run not found or not running", nil)
	}
	return nil
}

// ListByKey retrieves the full run history for a cache key, newest first.
func (r *CalcRepository) ListByKey(ctx context.Context, key string, limit int) ([]*types.CalcRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+calcColumns+`
		 FROM calc_runs
		 WHERE cache_key = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		key, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list calculation runs", err)
	}
	defer rows.Close()

	var results []*types.CalcRun
	for rows.Next() {
		run, scanErr := scanCalcRun(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan calculation run row", scanErr)
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating calculation run rows", err)
	}
	return results, nil
}

// DeleteOlderThan removes terminal runs (complete or failed) created before
// the cutoff. Used by maintenance to bound registry growth; running runs are
// never touched. Returns the number of deleted records.
func (r *CalcRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM calc_runs
		 WHERE created_at < $1 AND status != 'running'`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune calculation runs", err)
	}
	return tag.RowsAffected(), nil
}

// nilIfZeroTime maps the zero time to nil so COALESCE can substitute NOW().
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
