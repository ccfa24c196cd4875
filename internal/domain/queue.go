package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LiveQueueEntry is one user waiting in the live matchmaking queue.
// In-memory only; removed on match, explicit leave, or disconnect.
type LiveQueueEntry struct {
	UserID      uuid.UUID
	Gender      string
	Age         int
	Preferences Preferences
	Profile     PublicProfile
	JoinedAt    time.Time
}

// NewLiveChannelName derives the media channel identifier for an ad-hoc live
// call between two freshly paired users. Unique per pairing.
func NewLiveChannelName(a, b uuid.UUID) string {
	userA, userB := SortUserPair(a, b)
	return fmt.Sprintf("live-%s-%s-%d", userA, userB, time.Now().UnixMilli())
}

// MutuallyCompatible reports whether two queue entries satisfy each other's
// filters in both directions
func MutuallyCompatible(a, b *LiveQueueEntry) bool {
	if a.UserID == b.UserID {
		return false
	}
	if !a.Preferences.AcceptsAge(b.Age) || !b.Preferences.AcceptsAge(a.Age) {
		return false
	}
	if !a.Preferences.AcceptsGender(b.Gender) || !b.Preferences.AcceptsGender(a.Gender) {
		return false
	}
	return true
}
