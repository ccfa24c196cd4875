// Package livequeue holds users waiting for an immediate, randomly-matched
// call and pairs mutually compatible waiters. State is process-local and
// in-memory; entries vanish with the process.
package livequeue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/pkg/errors"
	"github.com/Loonyc-c/flint-sub001/pkg/metrics"
)

// Queue is the live matchmaking queue. A single mutex covers every scan and
// mutation, so FindMatch removes both members of a pair before any concurrent
// call can observe either of them.
type Queue struct {
	mu      sync.Mutex
	entries []*domain.LiveQueueEntry

	metrics *metrics.Metrics
}

// NewQueue creates an empty live queue. m may be nil.
func NewQueue(m *metrics.Metrics) *Queue {
	return &Queue{metrics: m}
}

// Enqueue adds a user to the back of the queue
func (q *Queue) Enqueue(profile domain.Profile) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.entries {
		if entry.UserID == profile.UserID {
			return errors.AlreadyQueuedError()
		}
	}

	q.entries = append(q.entries, &domain.LiveQueueEntry{
		UserID:      profile.UserID,
		Gender:      profile.Gender,
		Age:         profile.Age,
		Preferences: profile.Preferences,
		Profile:     profile.Public(),
		JoinedAt:    time.Now(),
	})

	q.observeDepth()
	return nil
}

// FindMatch scans the queue for the first entry mutually compatible with
// userID, in insertion order (FIFO fairness, no scoring). On a match both
// entries are removed before the lock is released; nil, nil means the
// requester stays queued.
func (q *Queue) FindMatch(userID uuid.UUID) (*domain.LiveQueueEntry, *domain.LiveQueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var requester *domain.LiveQueueEntry
	for _, entry := range q.entries {
		if entry.UserID == userID {
			requester = entry
			break
		}
	}
	if requester == nil {
		return nil, nil
	}

	for _, candidate := range q.entries {
		if candidate.UserID == userID {
			continue
		}
		if domain.MutuallyCompatible(requester, candidate) {
			q.removeLocked(requester.UserID)
			q.removeLocked(candidate.UserID)
			q.observeDepth()
			if q.metrics != nil {
				q.metrics.LiveMatchMade()
			}
			return requester, candidate
		}
	}

	return nil, nil
}

// Remove takes a user out of the queue. Idempotent; used on explicit leave
// and on disconnect.
func (q *Queue) Remove(userID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(userID)
	q.observeDepth()
}

// Contains reports whether a user is currently queued
func (q *Queue) Contains(userID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.entries {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}

// Len returns the current queue depth
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) removeLocked(userID uuid.UUID) {
	for i, entry := range q.entries {
		if entry.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

func (q *Queue) observeDepth() {
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.entries))
	}
}
