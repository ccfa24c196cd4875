// Package matchmaking runs the live queue flow (join, pair, leave) and the
// post-call like/pass round that turns two ad-hoc callers into a persistent
// match.
package matchmaking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/internal/service/livequeue"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/errors"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

// MatchRepository is the persisted match store used by matchmaking
type MatchRepository interface {
	Create(ctx context.Context, match *domain.Match) error
	GetByUserPair(ctx context.Context, a, b uuid.UUID) (*domain.Match, error)
}

// CallActionRepository records like/pass decisions
type CallActionRepository interface {
	Create(ctx context.Context, action *domain.CallAction) error
	HasLike(ctx context.Context, actorID, targetID uuid.UUID) (bool, error)
}

// UserRepository reads the authenticated user's stored profile
type UserRepository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

// Notifier delivers events to a user's current connection
type Notifier interface {
	Send(userID uuid.UUID, evt event.Event)
}

// BusyTracker is the availability source of truth
type BusyTracker interface {
	SetStatus(userID uuid.UUID, status string)
	Status(userID uuid.UUID) string
	IsBusy(userID uuid.UUID) bool
	Clear(userID uuid.UUID)
}

// Service coordinates the live queue and like/pass rounds
type Service struct {
	queue    *livequeue.Queue
	matches  MatchRepository
	actions  CallActionRepository
	users    UserRepository
	notifier Notifier
	busy     BusyTracker
}

// NewService creates a matchmaking service
func NewService(
	queue *livequeue.Queue,
	matches MatchRepository,
	actions CallActionRepository,
	users UserRepository,
	notifier Notifier,
	busy BusyTracker,
) *Service {
	return &Service{
		queue:    queue,
		matches:  matches,
		actions:  actions,
		users:    users,
		notifier: notifier,
		busy:     busy,
	}
}

// JoinQueue enters a user into the live queue and immediately tries to pair
// them. Profile and filters come from the stored profile, never from the
// client. If a mutually compatible waiter exists, both are removed, moved to
// in-call, and told about each other; otherwise the user waits.
func (s *Service) JoinQueue(ctx context.Context, userID uuid.UUID) error {
	if s.busy.IsBusy(userID) {
		return errors.UserBusyError()
	}

	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeUserNotFound, "Profile not found", err)
	}

	// The profile read suspends; a staged call may have started ringing for
	// this user in the meantime, so the precondition must be re-checked
	if s.busy.IsBusy(userID) {
		return errors.UserBusyError()
	}

	if err := s.queue.Enqueue(*profile); err != nil {
		return err
	}
	s.busy.SetStatus(userID, constants.BusyStatusQueueing)

	requester, partner := s.queue.FindMatch(userID)
	if requester == nil {
		return nil
	}

	channel := domain.NewLiveChannelName(requester.UserID, partner.UserID)

	s.busy.SetStatus(requester.UserID, constants.BusyStatusInCall)
	s.busy.SetStatus(partner.UserID, constants.BusyStatusInCall)

	s.notifier.Send(requester.UserID, event.Event{
		Type: event.MatchFound,
		Payload: event.MatchFoundPayload{
			ChannelName: channel,
			Partner:     partner.Profile,
		},
	})
	s.notifier.Send(partner.UserID, event.Event{
		Type: event.MatchFound,
		Payload: event.MatchFoundPayload{
			ChannelName: channel,
			Partner:     requester.Profile,
		},
	})

	logger.Info("live match made",
		zap.String("user_a", requester.UserID.String()),
		zap.String("user_b", partner.UserID.String()))

	return nil
}

// LeaveQueue removes a user from the queue. Idempotent; only a queueing user
// has their busy state reset, so a leave that races a pairing loses.
func (s *Service) LeaveQueue(userID uuid.UUID) {
	s.queue.Remove(userID)
	if s.busy.Status(userID) == constants.BusyStatusQueueing {
		s.busy.Clear(userID)
	}
}

// CallAction records a like or pass after an ad-hoc live call ends. Two
// reciprocal likes create a match (stage fresh) and both sides learn the
// outcome; anything else resolves only the actor's round.
func (s *Service) CallAction(ctx context.Context, actorID, targetID uuid.UUID, action string) error {
	if action != domain.CallActionLike && action != domain.CallActionPass {
		return errors.New(errors.ErrCodeInvalidPayload, "Action must be like or pass")
	}
	if actorID == targetID {
		return errors.New(errors.ErrCodeInvalidPayload, "Cannot act on yourself")
	}

	if err := s.actions.Create(ctx, &domain.CallAction{
		ID:        uuid.New(),
		ActorID:   actorID,
		TargetID:  targetID,
		Action:    action,
		CreatedAt: time.Now(),
	}); err != nil {
		return errors.Wrap(errors.ErrCodeDatabase, "Failed to record action", err)
	}

	// The recorded action marks the end of the actor's live call
	if s.busy.Status(actorID) == constants.BusyStatusInCall {
		s.busy.Clear(actorID)
	}

	if action == domain.CallActionPass {
		s.notifier.Send(actorID, event.Event{
			Type:    event.CallResult,
			Payload: event.CallResultPayload{Matched: false},
		})
		return nil
	}

	reciprocal, err := s.actions.HasLike(ctx, targetID, actorID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabase, "Failed to check reciprocity", err)
	}
	if !reciprocal {
		s.notifier.Send(actorID, event.Event{
			Type:    event.CallResult,
			Payload: event.CallResultPayload{Matched: false},
		})
		return nil
	}

	match, err := s.matches.GetByUserPair(ctx, actorID, targetID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabase, "Failed to look up match", err)
	}
	if match == nil {
		match = domain.NewMatch(actorID, targetID)
		if err := s.matches.Create(ctx, match); err != nil {
			return errors.Wrap(errors.ErrCodeDatabase, "Failed to create match", err)
		}
		logger.Info("mutual like created match",
			zap.String("match_id", match.ID.String()))
	}

	result := event.Event{
		Type:    event.CallResult,
		Payload: event.CallResultPayload{Matched: true, MatchID: &match.ID},
	}
	s.notifier.Send(actorID, result)
	s.notifier.Send(targetID, result)

	return nil
}

// HandleDisconnect drops the departing user from the queue
func (s *Service) HandleDisconnect(userID uuid.UUID) {
	s.LeaveQueue(userID)
}
