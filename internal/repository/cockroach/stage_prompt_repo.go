package cockroach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
)

// StagePromptRepository handles stage prompt data operations. The response
// update is a transactional read-modify-write: two concurrent votes on the
// same prompt serialize on the row lock.
type StagePromptRepository struct {
	pool *pgxpool.Pool
}

// NewStagePromptRepository creates a new stage prompt repository
func NewStagePromptRepository(pool *pgxpool.Pool) *StagePromptRepository {
	return &StagePromptRepository{pool: pool}
}

// Create inserts a new open stage prompt
func (r *StagePromptRepository) Create(ctx context.Context, prompt *domain.StagePrompt) error {
	responses, err := json.Marshal(prompt.Responses)
	if err != nil {
		return fmt.Errorf("failed to marshal prompt responses: %w", err)
	}

	query := `
		INSERT INTO stage_prompts (id, match_id, from_stage, responses, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.pool.Exec(ctx, query,
		prompt.ID,
		prompt.MatchID,
		prompt.FromStage,
		responses,
		prompt.ExpiresAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create stage prompt: %w", err)
	}

	return nil
}

// Respond writes one participant's vote (last-write-wins while the prompt is
// open) and resolves the prompt if every response is now non-null. Returns
// the updated prompt.
func (r *StagePromptRepository) Respond(ctx context.Context, matchID, userID uuid.UUID, accepted bool) (*domain.StagePrompt, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin prompt transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, match_id, from_stage, responses, expires_at, resolved_at, result
		FROM stage_prompts
		WHERE match_id = $1 AND resolved_at IS NULL
		ORDER BY expires_at DESC
		LIMIT 1
		FOR UPDATE
	`

	prompt, err := scanPrompt(tx.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoOpenPrompt
		}
		return nil, fmt.Errorf("failed to lock open prompt: %w", err)
	}

	if err := prompt.Record(userID, accepted); err != nil {
		return nil, fmt.Errorf("failed to record vote on prompt %s: %w", prompt.ID, err)
	}

	responses, err := json.Marshal(prompt.Responses)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prompt responses: %w", err)
	}

	update := `
		UPDATE stage_prompts
		SET responses = $2, resolved_at = $3, result = $4
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, update, prompt.ID, responses, prompt.ResolvedAt, prompt.Result); err != nil {
		return nil, fmt.Errorf("failed to update prompt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit prompt response: %w", err)
	}

	return prompt, nil
}

// ResolveExpired closes the open prompt for a match as declined. Reports
// false when the prompt was already resolved by a racing vote.
func (r *StagePromptRepository) ResolveExpired(ctx context.Context, matchID uuid.UUID) (*domain.StagePrompt, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin prompt transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, match_id, from_stage, responses, expires_at, resolved_at, result
		FROM stage_prompts
		WHERE match_id = $1 AND resolved_at IS NULL
		ORDER BY expires_at DESC
		LIMIT 1
		FOR UPDATE
	`

	prompt, err := scanPrompt(tx.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to lock open prompt: %w", err)
	}

	now := time.Now()
	result := domain.PromptResultDeclined
	prompt.ResolvedAt = &now
	prompt.Result = &result

	update := `
		UPDATE stage_prompts
		SET resolved_at = $2, result = $3
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, update, prompt.ID, prompt.ResolvedAt, prompt.Result); err != nil {
		return nil, false, fmt.Errorf("failed to expire prompt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit prompt expiry: %w", err)
	}

	return prompt, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (*domain.StagePrompt, error) {
	prompt := &domain.StagePrompt{}
	var responses []byte

	err := row.Scan(
		&prompt.ID,
		&prompt.MatchID,
		&prompt.FromStage,
		&responses,
		&prompt.ExpiresAt,
		&prompt.ResolvedAt,
		&prompt.Result,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(responses, &prompt.Responses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompt responses: %w", err)
	}

	return prompt, nil
}
