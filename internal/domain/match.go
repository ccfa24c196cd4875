package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchStage is the persisted progression stage of a match. The stage only
// moves forward; Unlocked is terminal.
type MatchStage string

const (
	// StageFresh is a newly created match, no staged calls completed
	StageFresh MatchStage = "fresh"

	// StageOneComplete means both users consented after the stage-1 audio call
	StageOneComplete MatchStage = "stage1_complete"

	// StageTwoComplete exists in the type for record fidelity but the consensus
	// flow advances stage-2 matches straight to Unlocked
	StageTwoComplete MatchStage = "stage2_complete"

	// StageUnlocked is terminal: contact info has been exchanged
	StageUnlocked MatchStage = "unlocked"
)

// Next returns the stage after a successful consensus round at s. A stage-2
// consensus unlocks the match directly; there is no path through
// StageTwoComplete.
func (s MatchStage) Next() MatchStage {
	switch s {
	case StageFresh:
		return StageOneComplete
	case StageOneComplete:
		return StageUnlocked
	default:
		return s
	}
}

// rank orders stages for the forward-only guard
func (s MatchStage) rank() int {
	switch s {
	case StageFresh:
		return 0
	case StageOneComplete:
		return 1
	case StageTwoComplete:
		return 2
	case StageUnlocked:
		return 3
	default:
		return -1
	}
}

// Before reports whether s precedes other in the progression order
func (s MatchStage) Before(other MatchStage) bool {
	return s.rank() < other.rank()
}

// Match represents a mutual match between two users. UserA and UserB are
// stored lexicographically sorted so the pair has a single canonical row.
type Match struct {
	ID                 uuid.UUID  `json:"id"`
	UserA              uuid.UUID  `json:"user_a"`
	UserB              uuid.UUID  `json:"user_b"`
	Stage              MatchStage `json:"stage"`
	ContactExchangedAt *time.Time `json:"contact_exchanged_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SortUserPair returns the two ids in canonical (lexicographic) order
func SortUserPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// NewMatch creates a fresh match with the user pair in canonical order
func NewMatch(a, b uuid.UUID) *Match {
	userA, userB := SortUserPair(a, b)
	now := time.Now()
	return &Match{
		ID:        uuid.New(),
		UserA:     userA,
		UserB:     userB,
		Stage:     StageFresh,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasUser reports whether userID is one of the matched pair
func (m *Match) HasUser(userID uuid.UUID) bool {
	return m.UserA == userID || m.UserB == userID
}

// OtherUser returns the partner of userID, and false if userID is not part
// of the match
func (m *Match) OtherUser(userID uuid.UUID) (uuid.UUID, bool) {
	if m.UserA == userID {
		return m.UserB, true
	}
	if m.UserB == userID {
		return m.UserA, true
	}
	return uuid.Nil, false
}

// Users returns both participant ids
func (m *Match) Users() [2]uuid.UUID {
	return [2]uuid.UUID{m.UserA, m.UserB}
}

// StagePermitted reports whether a staged call at callStage may be initiated
// given the match's current progression
func (m *Match) StagePermitted(callStage int) bool {
	switch callStage {
	case 1:
		return m.Stage == StageFresh
	case 2:
		return m.Stage == StageOneComplete
	default:
		return false
	}
}
