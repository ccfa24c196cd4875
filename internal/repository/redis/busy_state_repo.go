package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/database"
)

// BusyStateRepository mirrors the in-process busy-state map into Redis so
// sibling services (profile, notifications) can read availability without
// talking to this process. The in-memory tracker stays authoritative; every
// write here is best-effort.
type BusyStateRepository struct {
	client *database.RedisClient
}

// NewBusyStateRepository creates a new BusyStateRepository
func NewBusyStateRepository(client *database.RedisClient) *BusyStateRepository {
	return &BusyStateRepository{client: client}
}

// busyStateChange is the payload published on the busy-state channel
type busyStateChange struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
}

// SetStatus mirrors a user's busy status with a TTL and publishes the change
func (r *BusyStateRepository) SetStatus(ctx context.Context, userID uuid.UUID, status string) error {
	key := fmt.Sprintf("busy:%s", userID)

	if status == constants.BusyStatusAvailable {
		if err := r.client.SafeDel(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear busy mirror: %w", err)
		}
	} else {
		// TTL bounds staleness if this process dies without cleanup
		if err := r.client.SafeSet(ctx, key, status, 30*time.Minute).Err(); err != nil {
			return fmt.Errorf("failed to set busy mirror: %w", err)
		}
	}

	payload, err := json.Marshal(busyStateChange{UserID: userID, Status: status})
	if err != nil {
		return fmt.Errorf("failed to marshal busy state change: %w", err)
	}

	if err := r.client.SafePublish(ctx, "busy-state", payload).Err(); err != nil {
		return fmt.Errorf("failed to publish busy state change: %w", err)
	}

	return nil
}

// SetOnline adds a user to the online set when their connection registers
func (r *BusyStateRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.SafeSAdd(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}
	return nil
}

// SetOffline removes a user from the online set and clears the busy mirror
func (r *BusyStateRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.SafeSRem(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}
	if err := r.client.SafeDel(ctx, fmt.Sprintf("busy:%s", userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear busy mirror: %w", err)
	}
	return nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *BusyStateRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
