// Package stagedcall owns the lifecycle of progressive-disclosure calls
// between matched users: ringing, active, ended, the post-call consensus
// prompt, and the final contact reveal.
package stagedcall

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/internal/service/icebreaker"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/errors"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
	"github.com/Loonyc-c/flint-sub001/pkg/metrics"
)

// MatchRepository is the persisted match store used by the coordinator
type MatchRepository interface {
	GetByID(ctx context.Context, matchID uuid.UUID) (*domain.Match, error)
	AdvanceStage(ctx context.Context, matchID uuid.UUID, fromStage, toStage domain.MatchStage) error
	MarkContactExchanged(ctx context.Context, matchID uuid.UUID, at time.Time) error
}

// CallRepository is the persisted staged call store
type CallRepository interface {
	Create(ctx context.Context, call *domain.StagedCall) error
	MarkActive(ctx context.Context, callID uuid.UUID, startedAt time.Time) error
	MarkEnded(ctx context.Context, callID uuid.UUID, reason string, actualDuration int) error
	CloseDangling(ctx context.Context) (int64, error)
}

// PromptRepository is the persisted stage prompt store
type PromptRepository interface {
	Create(ctx context.Context, prompt *domain.StagePrompt) error
	Respond(ctx context.Context, matchID, userID uuid.UUID, accepted bool) (*domain.StagePrompt, error)
	ResolveExpired(ctx context.Context, matchID uuid.UUID) (*domain.StagePrompt, bool, error)
}

// UserRepository reads profiles and contact cards
type UserRepository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	GetContactCard(ctx context.Context, userID uuid.UUID) (*domain.ContactCard, error)
}

// Notifier delivers events to a user's current connection
type Notifier interface {
	Send(userID uuid.UUID, evt event.Event)
}

// BusyTracker is the availability source of truth
type BusyTracker interface {
	SetStatus(userID uuid.UUID, status string)
	IsBusy(userID uuid.UUID) bool
	Clear(userID uuid.UUID)
}

// Config holds the protocol timing constants. Tests shrink these to
// millisecond scale; production uses the defaults, which must match the
// client-embedded copies.
type Config struct {
	RingTimeout            time.Duration
	StageOneDuration       time.Duration
	StageTwoDuration       time.Duration
	PromptTimeout          time.Duration
	ContactDisplayDuration time.Duration
	IcebreakerInterval     time.Duration
}

// DefaultConfig returns the protocol constants
func DefaultConfig() Config {
	return Config{
		RingTimeout:            constants.RingTimeout,
		StageOneDuration:       constants.StageOneCallDuration,
		StageTwoDuration:       constants.StageTwoCallDuration,
		PromptTimeout:          constants.StagePromptTimeout,
		ContactDisplayDuration: constants.ContactDisplayDuration,
		IcebreakerInterval:     constants.IcebreakerInterval,
	}
}

// session is the in-memory state of one live staged call. Timer handles live
// on the session and are cleared only through teardown. Not durable: the
// persisted record is the recovery source of truth.
type session struct {
	call       *domain.StagedCall
	users      [2]uuid.UUID
	matchStage domain.MatchStage

	ringTimer      *time.Timer
	durationTimer  *time.Timer
	icebreakerStop chan struct{}
}

// Coordinator runs the staged call state machine. A single mutex serializes
// every transition; timer callbacks re-acquire it and re-validate session
// state before acting, which resolves the accept-vs-timeout and
// duplicate-accept races.
type Coordinator struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*session
	promptTimers map[uuid.UUID]*time.Timer

	cfg       Config
	matches   MatchRepository
	calls     CallRepository
	prompts   PromptRepository
	users     UserRepository
	notifier  Notifier
	busy      BusyTracker
	generator icebreaker.Generator
	metrics   *metrics.Metrics
}

// NewCoordinator creates a staged call coordinator. m may be nil.
func NewCoordinator(
	cfg Config,
	matches MatchRepository,
	calls CallRepository,
	prompts PromptRepository,
	users UserRepository,
	notifier Notifier,
	busy BusyTracker,
	generator icebreaker.Generator,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		sessions:     make(map[uuid.UUID]*session),
		promptTimers: make(map[uuid.UUID]*time.Timer),
		cfg:          cfg,
		matches:      matches,
		calls:        calls,
		prompts:      prompts,
		users:        users,
		notifier:     notifier,
		busy:         busy,
		generator:    generator,
		metrics:      m,
	}
}

// Recover closes staged call records orphaned by a previous process: their
// timers and sessions died with it, so they can never progress. Run once at
// startup before serving connections.
func (c *Coordinator) Recover(ctx context.Context) error {
	closed, err := c.calls.CloseDangling(ctx)
	if err != nil {
		return err
	}
	if closed > 0 {
		logger.Warn("closed dangling staged calls from previous run",
			zap.Int64("count", closed))
	}
	return nil
}

// Initiate starts a staged call: validates the match stage, enforces the
// one-active-call-per-match invariant, persists a ringing record, arms the
// ring timer, and notifies both sides.
func (c *Coordinator) Initiate(ctx context.Context, matchID, callerID, calleeID uuid.UUID, stage int) error {
	if stage < 1 || stage > constants.MaxCallStage {
		return errors.WrongStageError("Call stage out of range")
	}

	match, err := c.matches.GetByID(ctx, matchID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMatchNotFound, "Match not found", err)
	}
	if callerID == calleeID || !match.HasUser(callerID) || !match.HasUser(calleeID) {
		return errors.NotMatchParticipantError()
	}
	if !match.StagePermitted(stage) {
		return errors.WrongStageError("Match stage does not permit this call stage")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions[matchID] != nil {
		return errors.CallAlreadyActiveError()
	}
	if c.busy.IsBusy(callerID) || c.busy.IsBusy(calleeID) {
		return errors.UserBusyError()
	}

	call := domain.NewStagedCall(matchID, stage, callerID, calleeID, c.durationForStage(stage))
	if err := c.calls.Create(ctx, call); err != nil {
		return errors.Wrap(errors.ErrCodeDatabase, "Failed to start call", err)
	}

	s := &session{
		call:       call,
		users:      match.Users(),
		matchStage: match.Stage,
	}
	s.ringTimer = time.AfterFunc(c.cfg.RingTimeout, func() {
		c.onRingTimeout(matchID, call.ID)
	})
	c.sessions[matchID] = s

	c.busy.SetStatus(callerID, constants.BusyStatusConnecting)
	c.busy.SetStatus(calleeID, constants.BusyStatusConnecting)

	if c.metrics != nil {
		c.metrics.StagedCallStarted()
	}

	c.notifier.Send(calleeID, event.Event{
		Type: event.StagedCallRinging,
		Payload: event.StagedCallRingingPayload{
			MatchID:     matchID,
			CallID:      call.ID,
			CallerID:    callerID,
			Stage:       stage,
			CallType:    call.CallType,
			ChannelName: call.ChannelName,
			RingTimeout: int(c.cfg.RingTimeout.Seconds()),
		},
	})
	c.notifier.Send(callerID, event.Event{
		Type: event.StagedCallWaiting,
		Payload: event.StagedCallWaitingPayload{
			MatchID:     matchID,
			CallID:      call.ID,
			Stage:       stage,
			ChannelName: call.ChannelName,
			RingTimeout: int(c.cfg.RingTimeout.Seconds()),
		},
	})

	return nil
}

// Accept answers a ringing call. Only the callee may accept; a duplicate
// accept for an already-active session is ignored.
func (c *Coordinator) Accept(ctx context.Context, matchID, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[matchID]
	if s == nil {
		return errors.NoActiveCallError()
	}
	if s.call.Status == constants.CallStatusActive {
		// Retried accept; the session already transitioned
		return nil
	}
	if userID != s.call.CalleeID {
		return errors.NotCalleeError()
	}

	now := time.Now()
	if err := c.calls.MarkActive(ctx, s.call.ID, now); err != nil {
		// Leave the session ringing; the ring timer is still armed and the
		// client can retry the accept
		return errors.Wrap(errors.ErrCodeDatabase, "Failed to accept call", err)
	}

	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}

	s.call.Status = constants.CallStatusActive
	s.call.StartedAt = &now

	planned := c.durationForStage(s.call.Stage)
	callID := s.call.ID
	s.durationTimer = time.AfterFunc(planned, func() {
		c.onDurationElapsed(matchID, callID)
	})

	s.icebreakerStop = make(chan struct{})
	go c.icebreakerLoop(matchID, s.users, s.icebreakerStop)

	c.busy.SetStatus(s.call.CallerID, constants.BusyStatusInCall)
	c.busy.SetStatus(s.call.CalleeID, constants.BusyStatusInCall)

	accepted := event.Event{
		Type: event.StagedCallAccepted,
		Payload: event.StagedCallAcceptedPayload{
			MatchID:     matchID,
			CallID:      s.call.ID,
			Stage:       s.call.Stage,
			ChannelName: s.call.ChannelName,
			DurationSec: int(planned.Seconds()),
		},
	}
	c.notifier.Send(s.call.CallerID, accepted)
	c.notifier.Send(s.call.CalleeID, accepted)

	return nil
}

// Decline rejects a ringing call. Only the callee may decline.
func (c *Coordinator) Decline(ctx context.Context, matchID, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[matchID]
	if s == nil {
		return errors.NoActiveCallError()
	}
	if s.call.Status != constants.CallStatusRinging {
		return errors.New(errors.ErrCodeCallNotRinging, "Call is no longer ringing")
	}
	if userID != s.call.CalleeID {
		return errors.NotCalleeError()
	}

	c.teardown(s)
	c.persistEnd(s, constants.EndReasonDeclined, 0)

	c.notifier.Send(s.call.CallerID, event.Event{
		Type: event.StagedCallDeclined,
		Payload: event.StagedCallDeclinedPayload{
			MatchID: matchID,
			CallID:  s.call.ID,
		},
	})

	return nil
}

// HandleDisconnect tears down whatever session the departing user is part
// of. A disconnect forecloses progression: no prompt is offered. Safe to
// invoke for users with no session.
func (c *Coordinator) HandleDisconnect(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for matchID, s := range c.sessions {
		if s.users[0] != userID && s.users[1] != userID {
			continue
		}

		actual := s.elapsedSeconds()
		c.teardown(s)
		c.persistEnd(s, constants.EndReasonDisconnect, actual)

		other := s.users[0]
		if other == userID {
			other = s.users[1]
		}
		c.notifier.Send(other, event.Event{
			Type: event.StagedCallEnded,
			Payload: event.StagedCallEndedPayload{
				MatchID:        matchID,
				CallID:         s.call.ID,
				Stage:          s.call.Stage,
				Reason:         constants.EndReasonDisconnect,
				ActualDuration: actual,
			},
		})
		return
	}
}

// Shutdown ends every live session during graceful process shutdown
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for matchID, s := range c.sessions {
		actual := s.elapsedSeconds()
		c.teardown(s)
		c.persistEnd(s, constants.EndReasonShutdown, actual)

		ended := event.Event{
			Type: event.StagedCallEnded,
			Payload: event.StagedCallEndedPayload{
				MatchID:        matchID,
				CallID:         s.call.ID,
				Stage:          s.call.Stage,
				Reason:         constants.EndReasonShutdown,
				ActualDuration: actual,
			},
		}
		c.notifier.Send(s.users[0], ended)
		c.notifier.Send(s.users[1], ended)
	}

	for matchID, timer := range c.promptTimers {
		timer.Stop()
		delete(c.promptTimers, matchID)
	}
}

// HasActiveSession reports whether a match currently has a live session
func (c *Coordinator) HasActiveSession(matchID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[matchID] != nil
}

// onRingTimeout fires when the callee never answered. The session may have
// been resolved by an accept or decline while the timer was pending, so it
// re-validates under the lock before acting.
func (c *Coordinator) onRingTimeout(matchID, callID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[matchID]
	if s == nil || s.call.ID != callID || s.call.Status != constants.CallStatusRinging {
		return
	}

	c.teardown(s)
	c.persistEnd(s, constants.EndReasonTimeout, 0)

	timeoutPayload := event.StagedCallTimeoutPayload{
		MatchID: matchID,
		CallID:  s.call.ID,
	}
	c.notifier.Send(s.call.CallerID, event.Event{Type: event.StagedCallTimeout, Payload: timeoutPayload})
	c.notifier.Send(s.call.CalleeID, event.Event{Type: event.StagedCallMissed, Payload: timeoutPayload})
}

// onDurationElapsed completes a call whose planned duration ran out, then
// opens the consensus prompt if the match can still advance
func (c *Coordinator) onDurationElapsed(matchID, callID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[matchID]
	if s == nil || s.call.ID != callID || s.call.Status != constants.CallStatusActive {
		return
	}

	actual := s.elapsedSeconds()
	c.teardown(s)
	c.persistEnd(s, constants.EndReasonCompleted, actual)

	promptNext := s.matchStage.Next() != s.matchStage

	ended := event.Event{
		Type: event.StagedCallEnded,
		Payload: event.StagedCallEndedPayload{
			MatchID:         matchID,
			CallID:          s.call.ID,
			Stage:           s.call.Stage,
			Reason:          constants.EndReasonCompleted,
			ActualDuration:  actual,
			PromptNextStage: promptNext,
		},
	}
	c.notifier.Send(s.users[0], ended)
	c.notifier.Send(s.users[1], ended)

	if promptNext {
		c.openPrompt(matchID, s.call.Stage, s.users)
	}
}

// teardown clears every timer handle and resets both users' busy state.
// The single exit path for all terminal transitions; safe to reach with any
// subset of timers armed.
func (c *Coordinator) teardown(s *session) {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
	if s.durationTimer != nil {
		s.durationTimer.Stop()
		s.durationTimer = nil
	}
	if s.icebreakerStop != nil {
		close(s.icebreakerStop)
		s.icebreakerStop = nil
	}

	delete(c.sessions, s.call.MatchID)

	c.busy.Clear(s.users[0])
	c.busy.Clear(s.users[1])
}

// persistEnd closes the persisted record and observes metrics. Persistence
// failures are logged, not surfaced: the in-memory teardown already
// happened and must not be undone.
func (c *Coordinator) persistEnd(s *session, reason string, actualSeconds int) {
	s.call.Status = constants.CallStatusEnded

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	if err := c.calls.MarkEnded(ctx, s.call.ID, reason, actualSeconds); err != nil {
		logger.Error("failed to persist staged call end",
			zap.String("call_id", s.call.ID.String()),
			zap.String("reason", reason),
			zap.Error(err))
	}

	if c.metrics != nil {
		c.metrics.StagedCallEnded(s.call.Stage, reason, time.Duration(actualSeconds)*time.Second)
	}
}

func (c *Coordinator) durationForStage(stage int) time.Duration {
	if stage == 2 {
		return c.cfg.StageTwoDuration
	}
	return c.cfg.StageOneDuration
}

func (s *session) elapsedSeconds() int {
	if s.call.StartedAt == nil {
		return 0
	}
	return int(time.Since(*s.call.StartedAt).Seconds())
}
