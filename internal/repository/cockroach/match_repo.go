package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
)

// MatchRepository handles match data operations
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// Create inserts a new match. The (user_a, user_b) pair is unique; a second
// insert for the same pair fails at the store level.
func (r *MatchRepository) Create(ctx context.Context, match *domain.Match) error {
	query := `
		INSERT INTO matches (id, user_a, user_b, stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		match.ID,
		match.UserA,
		match.UserB,
		match.Stage,
		match.CreatedAt,
		match.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	return nil
}

// GetByID retrieves a match by ID
func (r *MatchRepository) GetByID(ctx context.Context, matchID uuid.UUID) (*domain.Match, error) {
	query := `
		SELECT id, user_a, user_b, stage, contact_exchanged_at, created_at, updated_at
		FROM matches
		WHERE id = $1
	`

	match := &domain.Match{}
	err := r.pool.QueryRow(ctx, query, matchID).Scan(
		&match.ID,
		&match.UserA,
		&match.UserB,
		&match.Stage,
		&match.ContactExchangedAt,
		&match.CreatedAt,
		&match.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("match not found")
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return match, nil
}

// GetByUserPair retrieves the match for a user pair in any order
func (r *MatchRepository) GetByUserPair(ctx context.Context, a, b uuid.UUID) (*domain.Match, error) {
	userA, userB := domain.SortUserPair(a, b)

	query := `
		SELECT id, user_a, user_b, stage, contact_exchanged_at, created_at, updated_at
		FROM matches
		WHERE user_a = $1 AND user_b = $2
	`

	match := &domain.Match{}
	err := r.pool.QueryRow(ctx, query, userA, userB).Scan(
		&match.ID,
		&match.UserA,
		&match.UserB,
		&match.Stage,
		&match.ContactExchangedAt,
		&match.CreatedAt,
		&match.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get match by pair: %w", err)
	}

	return match, nil
}

// AdvanceStage moves a match from fromStage to toStage. The WHERE clause
// guards the forward-only invariant: a concurrent or repeated advance finds
// no row and reports it.
func (r *MatchRepository) AdvanceStage(ctx context.Context, matchID uuid.UUID, fromStage, toStage domain.MatchStage) error {
	query := `
		UPDATE matches
		SET stage = $3, updated_at = NOW()
		WHERE id = $1 AND stage = $2
	`

	tag, err := r.pool.Exec(ctx, query, matchID, fromStage, toStage)
	if err != nil {
		return fmt.Errorf("failed to advance match stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s is not at stage %s", matchID, fromStage)
	}

	return nil
}

// MarkContactExchanged stamps the contact reveal time, once
func (r *MatchRepository) MarkContactExchanged(ctx context.Context, matchID uuid.UUID, at time.Time) error {
	query := `
		UPDATE matches
		SET contact_exchanged_at = $2, updated_at = NOW()
		WHERE id = $1 AND contact_exchanged_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, matchID, at)
	if err != nil {
		return fmt.Errorf("failed to mark contact exchanged: %w", err)
	}

	return nil
}
