// Package ws routes decoded WebSocket events to the matchmaking and staged
// call services and turns their errors into error events the client can act
// on.
package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/internal/hub"
	"github.com/Loonyc-c/flint-sub001/internal/service/busy"
	"github.com/Loonyc-c/flint-sub001/internal/service/matchmaking"
	"github.com/Loonyc-c/flint-sub001/internal/service/stagedcall"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/errors"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
	"github.com/Loonyc-c/flint-sub001/pkg/metrics"
)

// Presence mirrors online/offline transitions to an external store for
// sibling services. Best-effort.
type Presence interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
}

// Router owns the inbound event dispatch table and the connection lifecycle
// hooks
type Router struct {
	hub         *hub.Hub
	matchmaking *matchmaking.Service
	coordinator *stagedcall.Coordinator
	busy        *busy.Tracker
	presence    Presence
	metrics     *metrics.Metrics

	handlers map[string]func(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error
}

// NewRouter wires the dispatch table and installs itself on the hub
func NewRouter(
	h *hub.Hub,
	mm *matchmaking.Service,
	coordinator *stagedcall.Coordinator,
	busyTracker *busy.Tracker,
	presence Presence,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		hub:         h,
		matchmaking: mm,
		coordinator: coordinator,
		busy:        busyTracker,
		presence:    presence,
		metrics:     m,
	}

	r.handlers = map[string]func(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error{
		event.JoinQueue:           r.handleJoinQueue,
		event.LeaveQueue:          r.handleLeaveQueue,
		event.CallAction:          r.handleCallAction,
		event.StagedCallInitiate:  r.handleStagedCallInitiate,
		event.StagedCallAccept:    r.handleStagedCallAccept,
		event.StagedCallDecline:   r.handleStagedCallDecline,
		event.StagePromptResponse: r.handleStagePromptResponse,
	}

	h.SetDispatch(r.Dispatch)
	h.SetCallbacks(r.onConnect, r.onDisconnect)

	return r
}

// Dispatch routes one inbound event. Unknown types and handler errors are
// answered with an error event instead of dropping the connection.
func (r *Router) Dispatch(client *hub.Client, eventType string, payload json.RawMessage) {
	userID := client.UserID()

	if r.metrics != nil {
		r.metrics.EventReceived(eventType)
	}

	handler, ok := r.handlers[eventType]
	if !ok {
		r.sendError(userID, errors.New(errors.ErrCodeUnknownEvent, "Unknown event type: "+eventType))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	if err := handler(ctx, userID, payload); err != nil {
		r.sendError(userID, err)
	}
}

// onConnect pushes the busy-state snapshot so a fresh client can render
// availability before any change event arrives
func (r *Router) onConnect(userID uuid.UUID) {
	r.hub.Send(userID, event.Event{
		Type: event.BusyStatesSync,
		Payload: event.BusyStatesSyncPayload{
			States: r.busy.Snapshot(),
		},
	})

	if r.presence != nil {
		if err := r.presence.SetOnline(context.Background(), userID); err != nil {
			logger.Debug("presence mirror skipped", zap.Error(err))
		}
	}
}

// onDisconnect releases everything the departing user held: queue slot, any
// live staged call session, and their busy state. Fires only when the closed
// connection was still the user's current one, so a reconnect that already
// replaced it is untouched.
func (r *Router) onDisconnect(userID uuid.UUID) {
	r.matchmaking.HandleDisconnect(userID)
	r.coordinator.HandleDisconnect(userID)
	r.busy.Clear(userID)

	if r.presence != nil {
		if err := r.presence.SetOffline(context.Background(), userID); err != nil {
			logger.Debug("presence mirror skipped", zap.Error(err))
		}
	}
}

func (r *Router) handleJoinQueue(ctx context.Context, userID uuid.UUID, _ json.RawMessage) error {
	return r.matchmaking.JoinQueue(ctx, userID)
}

func (r *Router) handleLeaveQueue(_ context.Context, userID uuid.UUID, _ json.RawMessage) error {
	r.matchmaking.LeaveQueue(userID)
	return nil
}

func (r *Router) handleCallAction(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var p event.CallActionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, "Invalid call-action payload", err)
	}
	return r.matchmaking.CallAction(ctx, userID, p.TargetID, p.Action)
}

func (r *Router) handleStagedCallInitiate(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var p event.StagedCallInitiatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, "Invalid staged-call-initiate payload", err)
	}
	return r.coordinator.Initiate(ctx, p.MatchID, userID, p.CalleeID, p.Stage)
}

func (r *Router) handleStagedCallAccept(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var p event.StagedCallRefPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, "Invalid staged-call-accept payload", err)
	}
	return r.coordinator.Accept(ctx, p.MatchID, userID)
}

func (r *Router) handleStagedCallDecline(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var p event.StagedCallRefPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, "Invalid staged-call-decline payload", err)
	}
	return r.coordinator.Decline(ctx, p.MatchID, userID)
}

func (r *Router) handleStagePromptResponse(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var p event.StagePromptResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, "Invalid stage-prompt-response payload", err)
	}
	return r.coordinator.RespondPrompt(ctx, p.MatchID, userID, p.Accepted)
}

// sendError reports a failed operation back to its origin as an error event
// with a stable code
func (r *Router) sendError(userID uuid.UUID, err error) {
	code := errors.CodeOf(err)

	logger.Debug("event handling failed",
		zap.String("user_id", userID.String()),
		zap.String("code", string(code)),
		zap.Error(err))

	if r.metrics != nil {
		r.metrics.EventError(string(code))
	}

	r.hub.Send(userID, event.Event{
		Type: event.Error,
		Payload: event.ErrorPayload{
			Code:    string(code),
			Message: errors.MessageOf(err),
		},
	})
}
