package domain

import (
	"time"

	"github.com/google/uuid"
)

// Call actions
const (
	CallActionLike = "like"
	CallActionPass = "pass"
)

// CallAction records a like/pass decision made after an ad-hoc live call.
// Two reciprocal likes create a Match.
type CallAction struct {
	ID        uuid.UUID `json:"id"`
	ActorID   uuid.UUID `json:"actor_id"`
	TargetID  uuid.UUID `json:"target_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
