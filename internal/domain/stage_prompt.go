package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoOpenPrompt is returned when a match has no unresolved stage prompt
var ErrNoOpenPrompt = errors.New("no open stage prompt for match")

// ErrNotPromptParticipant is returned for a vote by a user the prompt was
// never addressed to
var ErrNotPromptParticipant = errors.New("user is not a prompt participant")

// Prompt results
const (
	PromptResultBothAccepted = "both_accepted"
	PromptResultDeclined     = "declined"
)

// StagePrompt is the post-call yes/no vote on advancing to the next stage.
// Responses holds one entry per participant; nil means undecided.
type StagePrompt struct {
	ID         uuid.UUID           `json:"id"`
	MatchID    uuid.UUID           `json:"match_id"`
	FromStage  int                 `json:"from_stage"`
	Responses  map[uuid.UUID]*bool `json:"responses"`
	ExpiresAt  time.Time           `json:"expires_at"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty"`
	Result     *string             `json:"result,omitempty"`
}

// NewStagePrompt creates an open prompt for both participants of a match
func NewStagePrompt(matchID uuid.UUID, fromStage int, users [2]uuid.UUID, ttl time.Duration) *StagePrompt {
	return &StagePrompt{
		ID:        uuid.New(),
		MatchID:   matchID,
		FromStage: fromStage,
		Responses: map[uuid.UUID]*bool{
			users[0]: nil,
			users[1]: nil,
		},
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Record stores one participant's vote. Repeated votes overwrite freely
// while the prompt is open (last-write-wins); once every participant has
// voted the prompt resolves, unanimous accepts as both_accepted and anything
// else as declined.
func (p *StagePrompt) Record(userID uuid.UUID, accepted bool) error {
	if _, ok := p.Responses[userID]; !ok {
		return ErrNotPromptParticipant
	}

	vote := accepted
	p.Responses[userID] = &vote

	if p.AllResponded() {
		now := time.Now()
		result := PromptResultDeclined
		if p.AllAccepted() {
			result = PromptResultBothAccepted
		}
		p.ResolvedAt = &now
		p.Result = &result
	}

	return nil
}

// Resolved reports whether the prompt has already been closed
func (p *StagePrompt) Resolved() bool {
	return p.ResolvedAt != nil
}

// AllResponded reports whether every participant has voted
func (p *StagePrompt) AllResponded() bool {
	for _, r := range p.Responses {
		if r == nil {
			return false
		}
	}
	return true
}

// AllAccepted reports whether every recorded vote is an accept. A prompt with
// any missing vote is not accepted.
func (p *StagePrompt) AllAccepted() bool {
	for _, r := range p.Responses {
		if r == nil || !*r {
			return false
		}
	}
	return true
}
