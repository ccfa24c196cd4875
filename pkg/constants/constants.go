// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Protocol timing constants. These are part of the wire contract: the mobile
// and web clients embed the same values to render their countdowns, so a change
// here requires a coordinated client release. The coordinator is authoritative;
// client-side timers are cosmetic.
const (
	// RingTimeout is how long a staged call rings before it is marked missed
	RingTimeout = 15 * time.Second

	// StageOneCallDuration is the planned length of a stage-1 (audio) call
	StageOneCallDuration = 5 * time.Minute

	// StageTwoCallDuration is the planned length of a stage-2 (video) call
	StageTwoCallDuration = 10 * time.Minute

	// StagePromptTimeout is how long both participants have to vote on
	// advancing to the next stage before the prompt resolves as declined
	StagePromptTimeout = 60 * time.Second

	// ContactDisplayDuration is the advisory window the client shows the
	// revealed contact info for; not enforced server-side
	ContactDisplayDuration = 5 * time.Minute

	// IcebreakerInterval is the repeat interval for pushing icebreaker
	// prompts during an active staged call
	IcebreakerInterval = 90 * time.Second
)

// Staged call stages
const (
	// MaxCallStage is the last stage of the progressive disclosure flow
	MaxCallStage = 2
)

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the per-message write deadline
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// IcebreakerRequestTimeout bounds a single call to the external
	// text-generation service so it can never stall call timers
	IcebreakerRequestTimeout = 10 * time.Second
)

// Call status constants
const (
	// CallStatusRinging indicates a call is waiting to be answered
	CallStatusRinging = "ringing"

	// CallStatusActive indicates a call is in progress
	CallStatusActive = "active"

	// CallStatusEnded indicates a call has ended
	CallStatusEnded = "ended"

	// CallTypeAudio indicates an audio-only call
	CallTypeAudio = "audio"

	// CallTypeVideo indicates a video call
	CallTypeVideo = "video"
)

// Call end reasons, persisted on the staged call record
const (
	EndReasonCompleted  = "completed"
	EndReasonDeclined   = "declined"
	EndReasonTimeout    = "timeout"
	EndReasonDisconnect = "disconnect"
	EndReasonOrphaned   = "orphaned"
	EndReasonShutdown   = "shutdown"
)

// Busy state constants
const (
	// BusyStatusAvailable indicates a user can be matched or called
	BusyStatusAvailable = "available"

	// BusyStatusQueueing indicates a user is waiting in the live queue
	BusyStatusQueueing = "queueing"

	// BusyStatusConnecting indicates a user is in call setup (ringing)
	BusyStatusConnecting = "connecting"

	// BusyStatusInCall indicates a user is in an active call
	BusyStatusInCall = "in_call"
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 24 * time.Hour
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Icebreaker constants
const (
	// MaxIcebreakerPrompts is the most prompts pushed per generation cycle
	MaxIcebreakerPrompts = 3
)
