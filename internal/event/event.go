// Package event defines the WebSocket wire protocol between clients and the
// call coordinator: event names and their payload shapes. Names are stable;
// clients switch on them directly.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
)

// Inbound event names (client → coordinator)
const (
	JoinQueue           = "join-queue"
	LeaveQueue          = "leave-queue"
	CallAction          = "call-action"
	StagedCallInitiate  = "staged-call-initiate"
	StagedCallAccept    = "staged-call-accept"
	StagedCallDecline   = "staged-call-decline"
	StagePromptResponse = "stage-prompt-response"
)

// Outbound event names (coordinator → client)
const (
	BusyStatesSync       = "busy-states-sync"
	UserBusyStateChanged = "user-busy-state-changed"
	MatchFound           = "match-found"
	CallResult           = "call-result"
	StagedCallRinging    = "staged-call-ringing"
	StagedCallWaiting    = "staged-call-waiting"
	StagedCallAccepted   = "staged-call-accepted"
	StagedCallDeclined   = "staged-call-declined"
	StagedCallEnded      = "staged-call-ended"
	StagedCallTimeout    = "staged-call-timeout"
	StagedCallMissed     = "staged-call-missed"
	StagePrompt          = "stage-prompt"
	StagePromptResult    = "stage-prompt-result"
	ContactExchange      = "contact-exchange"
	StagedCallIcebreaker = "staged-call-icebreaker"
	Error                = "error"
)

// Event is the envelope for every message on the wire
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound payloads. join-queue and leave-queue carry no payload: profile and
// filters come from the authenticated user's stored profile, not the client.

// CallActionPayload is the like/pass decision after an ad-hoc live call
type CallActionPayload struct {
	TargetID uuid.UUID `json:"targetId"`
	Action   string    `json:"action"` // like | pass
}

// StagedCallInitiatePayload starts a staged call for a match
type StagedCallInitiatePayload struct {
	MatchID  uuid.UUID `json:"matchId"`
	CalleeID uuid.UUID `json:"calleeId"`
	Stage    int       `json:"stage"`
}

// StagedCallRefPayload addresses the pending call of a match (accept/decline)
type StagedCallRefPayload struct {
	MatchID uuid.UUID `json:"matchId"`
}

// StagePromptResponsePayload is one participant's vote on advancing
type StagePromptResponsePayload struct {
	MatchID  uuid.UUID `json:"matchId"`
	Accepted bool      `json:"accepted"`
}

// Outbound payloads

// BusyStateEntry is one user's availability in the sync snapshot
type BusyStateEntry struct {
	UserID uuid.UUID `json:"userId"`
	Status string    `json:"status"`
}

// BusyStatesSyncPayload is the full snapshot pushed once on connect
type BusyStatesSyncPayload struct {
	States []BusyStateEntry `json:"states"`
}

// MatchFoundPayload tells one side of a live-queue pairing about the other.
// Partner carries public profile fields only.
type MatchFoundPayload struct {
	ChannelName string               `json:"channelName"`
	Partner     domain.PublicProfile `json:"partner"`
}

// CallResultPayload is the outcome of a like/pass round
type CallResultPayload struct {
	Matched bool       `json:"matched"`
	MatchID *uuid.UUID `json:"matchId,omitempty"`
}

// StagedCallRingingPayload is sent to the callee of a new staged call
type StagedCallRingingPayload struct {
	MatchID     uuid.UUID `json:"matchId"`
	CallID      uuid.UUID `json:"callId"`
	CallerID    uuid.UUID `json:"callerId"`
	Stage       int       `json:"stage"`
	CallType    string    `json:"callType"`
	ChannelName string    `json:"channelName"`
	RingTimeout int       `json:"ringTimeoutSec"`
}

// StagedCallWaitingPayload is sent to the caller while the callee rings
type StagedCallWaitingPayload struct {
	MatchID     uuid.UUID `json:"matchId"`
	CallID      uuid.UUID `json:"callId"`
	Stage       int       `json:"stage"`
	ChannelName string    `json:"channelName"`
	RingTimeout int       `json:"ringTimeoutSec"`
}

// StagedCallAcceptedPayload is sent to both sides when a call goes active.
// Duration lets each client render its own countdown.
type StagedCallAcceptedPayload struct {
	MatchID     uuid.UUID `json:"matchId"`
	CallID      uuid.UUID `json:"callId"`
	Stage       int       `json:"stage"`
	ChannelName string    `json:"channelName"`
	DurationSec int       `json:"durationSec"`
}

// StagedCallDeclinedPayload is sent to the caller on decline
type StagedCallDeclinedPayload struct {
	MatchID uuid.UUID `json:"matchId"`
	CallID  uuid.UUID `json:"callId"`
}

// StagedCallEndedPayload is sent to both sides on any call end
type StagedCallEndedPayload struct {
	MatchID         uuid.UUID `json:"matchId"`
	CallID          uuid.UUID `json:"callId"`
	Stage           int       `json:"stage"`
	Reason          string    `json:"reason"`
	ActualDuration  int       `json:"actualDurationSec"`
	PromptNextStage bool      `json:"promptNextStage"`
}

// StagedCallTimeoutPayload is sent when the ring timer fires
type StagedCallTimeoutPayload struct {
	MatchID uuid.UUID `json:"matchId"`
	CallID  uuid.UUID `json:"callId"`
}

// StagePromptPayload opens the advance vote for both participants
type StagePromptPayload struct {
	MatchID   uuid.UUID `json:"matchId"`
	FromStage int       `json:"fromStage"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StagePromptResultPayload reports the resolved vote to both participants
type StagePromptResultPayload struct {
	MatchID      uuid.UUID         `json:"matchId"`
	BothAccepted bool              `json:"bothAccepted"`
	NewStage     domain.MatchStage `json:"newStage"`
}

// ContactExchangePayload reveals the partner's contact handles, once
type ContactExchangePayload struct {
	MatchID   uuid.UUID         `json:"matchId"`
	Contact   map[string]string `json:"contact"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// IcebreakerPayload pushes conversation starters during an active call
type IcebreakerPayload struct {
	MatchID uuid.UUID `json:"matchId"`
	Prompts []string  `json:"prompts"`
}

// ErrorPayload carries a stable error code the client maps to a localized
// message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
