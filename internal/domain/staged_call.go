package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Loonyc-c/flint-sub001/pkg/constants"
)

// StagedCall represents a persisted staged call attempt between two matched
// users. At most one non-ended record may exist per match at a time; the
// coordinator enforces that, not the store.
type StagedCall struct {
	ID              uuid.UUID  `json:"id"`
	MatchID         uuid.UUID  `json:"match_id"`
	Stage           int        `json:"stage"` // 1 or 2
	CallType        string     `json:"call_type"`
	CallerID        uuid.UUID  `json:"caller_id"`
	CalleeID        uuid.UUID  `json:"callee_id"`
	ChannelName     string     `json:"channel_name"`
	Status          string     `json:"status"`
	PlannedDuration int        `json:"planned_duration"` // seconds
	ActualDuration  *int       `json:"actual_duration,omitempty"`
	EndReason       *string    `json:"end_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// CallTypeForStage maps a call stage to its media type: stage 1 is anonymous
// audio, stage 2 is video
func CallTypeForStage(stage int) string {
	if stage == 2 {
		return constants.CallTypeVideo
	}
	return constants.CallTypeAudio
}

// NewChannelName derives the opaque media channel identifier handed to the
// media transport. Unique per attempt.
func NewChannelName(matchID uuid.UUID, stage int) string {
	return fmt.Sprintf("staged-%s-s%d-%d", matchID, stage, time.Now().UnixMilli())
}

// NewStagedCall builds a ringing staged call record
func NewStagedCall(matchID uuid.UUID, stage int, callerID, calleeID uuid.UUID, planned time.Duration) *StagedCall {
	return &StagedCall{
		ID:              uuid.New(),
		MatchID:         matchID,
		Stage:           stage,
		CallType:        CallTypeForStage(stage),
		CallerID:        callerID,
		CalleeID:        calleeID,
		ChannelName:     NewChannelName(matchID, stage),
		Status:          constants.CallStatusRinging,
		PlannedDuration: int(planned.Seconds()),
		CreatedAt:       time.Now(),
	}
}
