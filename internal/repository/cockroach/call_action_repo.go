package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
)

// CallActionRepository handles like/pass decisions recorded after live calls
type CallActionRepository struct {
	pool *pgxpool.Pool
}

// NewCallActionRepository creates a new call action repository
func NewCallActionRepository(pool *pgxpool.Pool) *CallActionRepository {
	return &CallActionRepository{pool: pool}
}

// Create records a call action. A repeated action by the same actor on the
// same target overwrites the previous decision.
func (r *CallActionRepository) Create(ctx context.Context, action *domain.CallAction) error {
	query := `
		INSERT INTO call_actions (id, actor_id, target_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_id, target_id)
		DO UPDATE SET action = $4, created_at = $5
	`

	_, err := r.pool.Exec(ctx, query,
		action.ID,
		action.ActorID,
		action.TargetID,
		action.Action,
		action.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create call action: %w", err)
	}

	return nil
}

// HasLike reports whether actor has recorded a like on target
func (r *CallActionRepository) HasLike(ctx context.Context, actorID, targetID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM call_actions
			WHERE actor_id = $1 AND target_id = $2 AND action = $3
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, actorID, targetID, domain.CallActionLike).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check call action: %w", err)
	}

	return exists, nil
}
