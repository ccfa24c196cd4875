// Package busy tracks each user's call-availability status. The in-process
// map is the single source of truth; it is advisory state, re-derived from
// queue and call membership after a restart.
package busy

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

// Broadcaster fans a busy-state change out to every connected client
type Broadcaster interface {
	Broadcast(evt event.Event)
}

// Mirror replicates busy-state changes to an external store for sibling
// services. All calls are best-effort.
type Mirror interface {
	SetStatus(ctx context.Context, userID uuid.UUID, status string) error
}

// Tracker is the single writer of busy states
type Tracker struct {
	mu     sync.RWMutex
	states map[uuid.UUID]string

	broadcaster Broadcaster
	mirror      Mirror
}

// NewTracker creates a busy-state tracker. mirror may be nil.
func NewTracker(broadcaster Broadcaster, mirror Mirror) *Tracker {
	return &Tracker{
		states:      make(map[uuid.UUID]string),
		broadcaster: broadcaster,
		mirror:      mirror,
	}
}

// SetStatus updates a user's status and broadcasts the change. A no-op if
// the status is unchanged.
func (t *Tracker) SetStatus(userID uuid.UUID, status string) {
	t.mu.Lock()
	current, ok := t.states[userID]
	if !ok {
		current = constants.BusyStatusAvailable
	}
	if current == status {
		t.mu.Unlock()
		return
	}
	if status == constants.BusyStatusAvailable {
		delete(t.states, userID)
	} else {
		t.states[userID] = status
	}
	t.mu.Unlock()

	if t.broadcaster != nil {
		t.broadcaster.Broadcast(event.Event{
			Type: event.UserBusyStateChanged,
			Payload: event.BusyStateEntry{
				UserID: userID,
				Status: status,
			},
		})
	}

	if t.mirror != nil {
		if err := t.mirror.SetStatus(context.Background(), userID, status); err != nil {
			logger.Debug("busy-state mirror write skipped",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
}

// Status returns a user's current status; absent users are available
func (t *Tracker) Status(userID uuid.UUID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if status, ok := t.states[userID]; ok {
		return status
	}
	return constants.BusyStatusAvailable
}

// IsBusy reports whether a user is anything but available
func (t *Tracker) IsBusy(userID uuid.UUID) bool {
	return t.Status(userID) != constants.BusyStatusAvailable
}

// Clear resets a user to available
func (t *Tracker) Clear(userID uuid.UUID) {
	t.SetStatus(userID, constants.BusyStatusAvailable)
}

// Snapshot returns every non-available user's state, for sync-on-join
func (t *Tracker) Snapshot() []event.BusyStateEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]event.BusyStateEntry, 0, len(t.states))
	for userID, status := range t.states {
		entries = append(entries, event.BusyStateEntry{UserID: userID, Status: status})
	}
	return entries
}
