package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
)

// StagedCallRepository handles staged call data operations
type StagedCallRepository struct {
	pool *pgxpool.Pool
}

// NewStagedCallRepository creates a new staged call repository
func NewStagedCallRepository(pool *pgxpool.Pool) *StagedCallRepository {
	return &StagedCallRepository{pool: pool}
}

// Create inserts a new staged call record in ringing state
func (r *StagedCallRepository) Create(ctx context.Context, call *domain.StagedCall) error {
	query := `
		INSERT INTO staged_calls (
			id, match_id, stage, call_type, caller_id, callee_id,
			channel_name, status, planned_duration, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		call.ID,
		call.MatchID,
		call.Stage,
		call.CallType,
		call.CallerID,
		call.CalleeID,
		call.ChannelName,
		call.Status,
		call.PlannedDuration,
		call.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create staged call: %w", err)
	}

	return nil
}

// MarkActive sets a call active and records its start time
func (r *StagedCallRepository) MarkActive(ctx context.Context, callID uuid.UUID, startedAt time.Time) error {
	query := `
		UPDATE staged_calls
		SET status = $2, started_at = $3
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, callID, constants.CallStatusActive, startedAt)
	if err != nil {
		return fmt.Errorf("failed to mark staged call active: %w", err)
	}

	return nil
}

// MarkEnded closes a call record with its end reason and actual duration in
// seconds. Idempotent: an already-ended record is left untouched.
func (r *StagedCallRepository) MarkEnded(ctx context.Context, callID uuid.UUID, reason string, actualDuration int) error {
	query := `
		UPDATE staged_calls
		SET status = $2, end_reason = $3, actual_duration = $4, ended_at = NOW()
		WHERE id = $1 AND status != $2
	`

	_, err := r.pool.Exec(ctx, query, callID, constants.CallStatusEnded, reason, actualDuration)
	if err != nil {
		return fmt.Errorf("failed to mark staged call ended: %w", err)
	}

	return nil
}

// CloseDangling ends every non-ended record. Run once at coordinator startup:
// the in-memory sessions and timers for these records died with the previous
// process, so the records can never progress.
func (r *StagedCallRepository) CloseDangling(ctx context.Context) (int64, error) {
	query := `
		UPDATE staged_calls
		SET status = $1, end_reason = $2, ended_at = NOW()
		WHERE status != $1
	`

	tag, err := r.pool.Exec(ctx, query, constants.CallStatusEnded, constants.EndReasonOrphaned)
	if err != nil {
		return 0, fmt.Errorf("failed to close dangling staged calls: %w", err)
	}

	return tag.RowsAffected(), nil
}
