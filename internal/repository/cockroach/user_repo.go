package cockroach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
)

// UserRepository reads profile and contact data owned by the profile service.
// The call service never writes these rows.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetProfile retrieves the matching-relevant profile fields for a user
func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `
		SELECT id, display_name, age, gender, interests,
		       pref_gender, pref_min_age, pref_max_age, looking_for
		FROM users
		WHERE id = $1
	`

	profile := &domain.Profile{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.Age,
		&profile.Gender,
		&profile.Interests,
		&profile.Preferences.GenderFilter,
		&profile.Preferences.MinAge,
		&profile.Preferences.MaxAge,
		&profile.Preferences.LookingFor,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// GetContactCard retrieves a user's stored contact handles
func (r *UserRepository) GetContactCard(ctx context.Context, userID uuid.UUID) (*domain.ContactCard, error) {
	query := `
		SELECT id, contact
		FROM users
		WHERE id = $1
	`

	card := &domain.ContactCard{}
	var contact []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(&card.UserID, &contact)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get contact card: %w", err)
	}

	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &card.Handles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact handles: %w", err)
		}
	}

	return card, nil
}
