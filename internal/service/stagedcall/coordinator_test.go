package stagedcall

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/internal/service/busy"
	"github.com/Loonyc-c/flint-sub001/internal/service/icebreaker"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/errors"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(&logger.Config{Level: "error", Format: "json"})
	os.Exit(m.Run())
}

// testConfig shrinks the protocol timers so timer-driven paths run in
// milliseconds. The icebreaker interval stays long: only the initial push
// fires during a test.
func testConfig() Config {
	return Config{
		RingTimeout:            100 * time.Millisecond,
		StageOneDuration:       150 * time.Millisecond,
		StageTwoDuration:       200 * time.Millisecond,
		PromptTimeout:          100 * time.Millisecond,
		ContactDisplayDuration: time.Minute,
		IcebreakerInterval:     time.Hour,
	}
}

// Mocks

type MockMatchRepository struct {
	mock.Mock
}

func (m *MockMatchRepository) GetByID(ctx context.Context, matchID uuid.UUID) (*domain.Match, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Match), args.Error(1)
}

func (m *MockMatchRepository) AdvanceStage(ctx context.Context, matchID uuid.UUID, fromStage, toStage domain.MatchStage) error {
	args := m.Called(ctx, matchID, fromStage, toStage)
	return args.Error(0)
}

func (m *MockMatchRepository) MarkContactExchanged(ctx context.Context, matchID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, matchID, at)
	return args.Error(0)
}

type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.StagedCall) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) MarkActive(ctx context.Context, callID uuid.UUID, startedAt time.Time) error {
	args := m.Called(ctx, callID, startedAt)
	return args.Error(0)
}

func (m *MockCallRepository) MarkEnded(ctx context.Context, callID uuid.UUID, reason string, actualDuration int) error {
	args := m.Called(ctx, callID, reason, actualDuration)
	return args.Error(0)
}

func (m *MockCallRepository) CloseDangling(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockPromptRepository struct {
	mock.Mock
}

func (m *MockPromptRepository) Create(ctx context.Context, prompt *domain.StagePrompt) error {
	args := m.Called(ctx, prompt)
	return args.Error(0)
}

func (m *MockPromptRepository) Respond(ctx context.Context, matchID, userID uuid.UUID, accepted bool) (*domain.StagePrompt, error) {
	args := m.Called(ctx, matchID, userID, accepted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StagePrompt), args.Error(1)
}

func (m *MockPromptRepository) ResolveExpired(ctx context.Context, matchID uuid.UUID) (*domain.StagePrompt, bool, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.StagePrompt), args.Bool(1), args.Error(2)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockUserRepository) GetContactCard(ctx context.Context, userID uuid.UUID) (*domain.ContactCard, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContactCard), args.Error(1)
}

// recordingNotifier captures events per user for assertions
type recordingNotifier struct {
	mu     sync.Mutex
	events map[uuid.UUID][]event.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[uuid.UUID][]event.Event)}
}

func (n *recordingNotifier) Send(userID uuid.UUID, evt event.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], evt)
}

func (n *recordingNotifier) has(userID uuid.UUID, eventType string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, evt := range n.events[userID] {
		if evt.Type == eventType {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) lastOfType(userID uuid.UUID, eventType string) (event.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events[userID]) - 1; i >= 0; i-- {
		if n.events[userID][i].Type == eventType {
			return n.events[userID][i], true
		}
	}
	return event.Event{}, false
}

type fixture struct {
	coordinator *Coordinator
	matches     *MockMatchRepository
	calls       *MockCallRepository
	prompts     *MockPromptRepository
	users       *MockUserRepository
	notifier    *recordingNotifier
	tracker     *busy.Tracker

	match  *domain.Match
	caller uuid.UUID
	callee uuid.UUID
}

func newFixture(stage domain.MatchStage) *fixture {
	matches := new(MockMatchRepository)
	calls := new(MockCallRepository)
	prompts := new(MockPromptRepository)
	users := new(MockUserRepository)
	notifier := newRecordingNotifier()
	tracker := busy.NewTracker(nil, nil)

	caller := uuid.New()
	callee := uuid.New()
	match := domain.NewMatch(caller, callee)
	match.Stage = stage

	users.On("GetProfile", mock.Anything, mock.Anything).
		Return(&domain.Profile{Interests: []string{"hiking"}}, nil).Maybe()

	return &fixture{
		coordinator: NewCoordinator(
			testConfig(), matches, calls, prompts, users,
			notifier, tracker, &icebreaker.MockGenerator{}, nil,
		),
		matches:  matches,
		calls:    calls,
		prompts:  prompts,
		users:    users,
		notifier: notifier,
		tracker:  tracker,
		match:    match,
		caller:   caller,
		callee:   callee,
	}
}

// initiate runs a successful Initiate for the fixture's match
func (f *fixture) initiate(t *testing.T, stage int) {
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)
	f.calls.On("Create", mock.Anything, mock.AnythingOfType("*domain.StagedCall")).Return(nil)

	err := f.coordinator.Initiate(context.Background(), f.match.ID, f.caller, f.callee, stage)
	assert.NoError(t, err)
}

// allowBackgroundTimers registers optional expectations for timers that may
// fire after a test's assertions complete, so a stray callback never hits an
// unconfigured mock
func (f *fixture) allowBackgroundTimers() {
	f.calls.On("MarkEnded", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.prompts.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.prompts.On("ResolveExpired", mock.Anything, mock.Anything).Return(nil, false, nil).Maybe()
}

// accept runs a successful Accept by the callee
func (f *fixture) accept(t *testing.T) {
	f.calls.On("MarkActive", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.coordinator.Accept(context.Background(), f.match.ID, f.callee)
	assert.NoError(t, err)
}

func TestInitiateRingsCallee(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.allowBackgroundTimers()

	assert.True(t, f.notifier.has(f.callee, event.StagedCallRinging))
	assert.True(t, f.notifier.has(f.caller, event.StagedCallWaiting))
	assert.Equal(t, constants.BusyStatusConnecting, f.tracker.Status(f.caller))
	assert.Equal(t, constants.BusyStatusConnecting, f.tracker.Status(f.callee))
	assert.True(t, f.coordinator.HasActiveSession(f.match.ID))

	evt, _ := f.notifier.lastOfType(f.callee, event.StagedCallRinging)
	payload := evt.Payload.(event.StagedCallRingingPayload)
	assert.Equal(t, 1, payload.Stage)
	assert.Equal(t, constants.CallTypeAudio, payload.CallType)
	assert.NotEmpty(t, payload.ChannelName)
}

func TestInitiateStageTwoIsVideo(t *testing.T) {
	f := newFixture(domain.StageOneComplete)
	f.initiate(t, 2)
	f.allowBackgroundTimers()

	evt, ok := f.notifier.lastOfType(f.callee, event.StagedCallRinging)
	assert.True(t, ok)
	assert.Equal(t, constants.CallTypeVideo, evt.Payload.(event.StagedCallRingingPayload).CallType)
}

func TestInitiateRejectsWrongStage(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)

	err := f.coordinator.Initiate(context.Background(), f.match.ID, f.caller, f.callee, 2)
	assert.Equal(t, errors.ErrCodeWrongStage, errors.CodeOf(err))
}

func TestInitiateRejectsStageOutOfRange(t *testing.T) {
	f := newFixture(domain.StageFresh)

	for _, stage := range []int{0, 3, -1} {
		err := f.coordinator.Initiate(context.Background(), f.match.ID, f.caller, f.callee, stage)
		assert.Equal(t, errors.ErrCodeWrongStage, errors.CodeOf(err))
	}

	// Rejected before any lookup
	f.matches.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestInitiateRejectsUnlockedMatch(t *testing.T) {
	f := newFixture(domain.StageUnlocked)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)

	err := f.coordinator.Initiate(context.Background(), f.match.ID, f.caller, f.callee, 1)
	assert.Equal(t, errors.ErrCodeWrongStage, errors.CodeOf(err))
}

func TestInitiateRejectsNonParticipant(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)

	err := f.coordinator.Initiate(context.Background(), f.match.ID, uuid.New(), f.callee, 1)
	assert.Equal(t, errors.ErrCodeNotMatchParticipant, errors.CodeOf(err))
}

func TestInitiateRejectsDuplicateCall(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.allowBackgroundTimers()

	err := f.coordinator.Initiate(context.Background(), f.match.ID, f.caller, f.callee, 1)
	assert.Equal(t, errors.ErrCodeCallAlreadyActive, errors.CodeOf(err))
}

func TestInitiateRejectsBusyParticipant(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)
	f.tracker.SetStatus(f.callee, constants.BusyStatusInCall)

	err := f.coordinator.Initiate(context.Background(), f.match.ID, f.caller, f.callee, 1)
	assert.Equal(t, errors.ErrCodeUserBusy, errors.CodeOf(err))
}

func TestAcceptActivatesCall(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)
	f.allowBackgroundTimers()

	assert.True(t, f.notifier.has(f.caller, event.StagedCallAccepted))
	assert.True(t, f.notifier.has(f.callee, event.StagedCallAccepted))
	assert.Equal(t, constants.BusyStatusInCall, f.tracker.Status(f.caller))
	assert.Equal(t, constants.BusyStatusInCall, f.tracker.Status(f.callee))

	// The initial icebreaker push follows activation
	assert.Eventually(t, func() bool {
		return f.notifier.has(f.caller, event.StagedCallIcebreaker) &&
			f.notifier.has(f.callee, event.StagedCallIcebreaker)
	}, time.Second, 5*time.Millisecond)
}

func TestAcceptByCallerRejected(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.allowBackgroundTimers()

	err := f.coordinator.Accept(context.Background(), f.match.ID, f.caller)
	assert.Equal(t, errors.ErrCodeNotCallee, errors.CodeOf(err))
}

func TestAcceptWithoutCallRejected(t *testing.T) {
	f := newFixture(domain.StageFresh)

	err := f.coordinator.Accept(context.Background(), f.match.ID, f.callee)
	assert.Equal(t, errors.ErrCodeNoActiveCall, errors.CodeOf(err))
}

func TestDuplicateAcceptIsIgnored(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)
	f.allowBackgroundTimers()

	err := f.coordinator.Accept(context.Background(), f.match.ID, f.callee)
	assert.NoError(t, err)
	f.calls.AssertNumberOfCalls(t, "MarkActive", 1)
}

func TestDeclineEndsCall(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonDeclined, 0).Return(nil)

	err := f.coordinator.Decline(context.Background(), f.match.ID, f.callee)
	assert.NoError(t, err)

	assert.True(t, f.notifier.has(f.caller, event.StagedCallDeclined))
	assert.False(t, f.coordinator.HasActiveSession(f.match.ID))
	assert.False(t, f.tracker.IsBusy(f.caller))
	assert.False(t, f.tracker.IsBusy(f.callee))
}

func TestDeclineByCallerRejected(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.allowBackgroundTimers()

	err := f.coordinator.Decline(context.Background(), f.match.ID, f.caller)
	assert.Equal(t, errors.ErrCodeNotCallee, errors.CodeOf(err))
	assert.True(t, f.coordinator.HasActiveSession(f.match.ID))
}

func TestRingTimeout(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonTimeout, 0).Return(nil)

	assert.Eventually(t, func() bool {
		return f.notifier.has(f.caller, event.StagedCallTimeout) &&
			f.notifier.has(f.callee, event.StagedCallMissed)
	}, time.Second, 5*time.Millisecond)

	assert.False(t, f.coordinator.HasActiveSession(f.match.ID))
	assert.False(t, f.tracker.IsBusy(f.caller))
	assert.False(t, f.tracker.IsBusy(f.callee))
}

func TestAcceptBeatsRingTimeout(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)
	f.allowBackgroundTimers()

	// Wait past the original ring deadline; the stale timer must not fire
	time.Sleep(2 * testConfig().RingTimeout)

	assert.False(t, f.notifier.has(f.caller, event.StagedCallTimeout))
	assert.False(t, f.notifier.has(f.callee, event.StagedCallMissed))
}

func TestDurationElapsedCompletesAndPrompts(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)
	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonCompleted, mock.Anything).Return(nil)
	f.prompts.On("Create", mock.Anything, mock.AnythingOfType("*domain.StagePrompt")).Return(nil)
	f.prompts.On("ResolveExpired", mock.Anything, f.match.ID).Return(nil, false, nil).Maybe()

	assert.Eventually(t, func() bool {
		return f.notifier.has(f.caller, event.StagedCallEnded) &&
			f.notifier.has(f.callee, event.StagedCallEnded)
	}, time.Second, 5*time.Millisecond)

	evt, _ := f.notifier.lastOfType(f.caller, event.StagedCallEnded)
	payload := evt.Payload.(event.StagedCallEndedPayload)
	assert.Equal(t, constants.EndReasonCompleted, payload.Reason)
	assert.True(t, payload.PromptNextStage)

	assert.Eventually(t, func() bool {
		return f.notifier.has(f.caller, event.StagePrompt) &&
			f.notifier.has(f.callee, event.StagePrompt)
	}, time.Second, 5*time.Millisecond)

	assert.False(t, f.coordinator.HasActiveSession(f.match.ID))
	assert.False(t, f.tracker.IsBusy(f.caller))
}

func TestDisconnectEndsActiveCall(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)
	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonDisconnect, mock.Anything).Return(nil)

	f.coordinator.HandleDisconnect(f.caller)

	evt, ok := f.notifier.lastOfType(f.callee, event.StagedCallEnded)
	assert.True(t, ok)
	payload := evt.Payload.(event.StagedCallEndedPayload)
	assert.Equal(t, constants.EndReasonDisconnect, payload.Reason)
	assert.False(t, payload.PromptNextStage)

	assert.False(t, f.coordinator.HasActiveSession(f.match.ID))
	assert.False(t, f.tracker.IsBusy(f.callee))
}

func TestDisconnectWithoutSessionIsNoOp(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.coordinator.HandleDisconnect(uuid.New())
	f.calls.AssertNotCalled(t, "MarkEnded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestShutdownEndsAllSessions(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)
	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonShutdown, mock.Anything).Return(nil)

	f.coordinator.Shutdown(context.Background())

	evt, ok := f.notifier.lastOfType(f.caller, event.StagedCallEnded)
	assert.True(t, ok)
	assert.Equal(t, constants.EndReasonShutdown, evt.Payload.(event.StagedCallEndedPayload).Reason)
	assert.False(t, f.coordinator.HasActiveSession(f.match.ID))
}

func resolvedPrompt(matchID uuid.UUID, users [2]uuid.UUID, fromStage int, result string) *domain.StagePrompt {
	accepted := result == domain.PromptResultBothAccepted
	now := time.Now()
	return &domain.StagePrompt{
		ID:        uuid.New(),
		MatchID:   matchID,
		FromStage: fromStage,
		Responses: map[uuid.UUID]*bool{
			users[0]: &accepted,
			users[1]: &accepted,
		},
		ExpiresAt:  now.Add(time.Minute),
		ResolvedAt: &now,
		Result:     &result,
	}
}

func TestRespondPromptFirstVoteWaits(t *testing.T) {
	f := newFixture(domain.StageFresh)
	open := &domain.StagePrompt{
		ID:        uuid.New(),
		MatchID:   f.match.ID,
		FromStage: 1,
		Responses: map[uuid.UUID]*bool{f.caller: nil, f.callee: nil},
		ExpiresAt: time.Now().Add(time.Minute),
	}
	f.prompts.On("Respond", mock.Anything, f.match.ID, f.caller, true).Return(open, nil)

	err := f.coordinator.RespondPrompt(context.Background(), f.match.ID, f.caller, true)
	assert.NoError(t, err)
	assert.False(t, f.notifier.has(f.caller, event.StagePromptResult))
}

func TestRespondPromptBothAcceptAdvancesStage(t *testing.T) {
	f := newFixture(domain.StageFresh)
	prompt := resolvedPrompt(f.match.ID, f.match.Users(), 1, domain.PromptResultBothAccepted)

	f.prompts.On("Respond", mock.Anything, f.match.ID, f.callee, true).Return(prompt, nil)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)
	f.matches.On("AdvanceStage", mock.Anything, f.match.ID, domain.StageFresh, domain.StageOneComplete).Return(nil)

	err := f.coordinator.RespondPrompt(context.Background(), f.match.ID, f.callee, true)
	assert.NoError(t, err)

	for _, userID := range f.match.Users() {
		evt, ok := f.notifier.lastOfType(userID, event.StagePromptResult)
		assert.True(t, ok)
		payload := evt.Payload.(event.StagePromptResultPayload)
		assert.True(t, payload.BothAccepted)
		assert.Equal(t, domain.StageOneComplete, payload.NewStage)
	}
	f.matches.AssertExpectations(t)
}

func TestRespondPromptDeclineKeepsStage(t *testing.T) {
	f := newFixture(domain.StageFresh)
	prompt := resolvedPrompt(f.match.ID, f.match.Users(), 1, domain.PromptResultDeclined)

	f.prompts.On("Respond", mock.Anything, f.match.ID, f.callee, false).Return(prompt, nil)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)

	err := f.coordinator.RespondPrompt(context.Background(), f.match.ID, f.callee, false)
	assert.NoError(t, err)

	evt, ok := f.notifier.lastOfType(f.caller, event.StagePromptResult)
	assert.True(t, ok)
	payload := evt.Payload.(event.StagePromptResultPayload)
	assert.False(t, payload.BothAccepted)
	assert.Equal(t, domain.StageFresh, payload.NewStage)
	f.matches.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRespondPromptUnlockRevealsContact(t *testing.T) {
	f := newFixture(domain.StageOneComplete)
	prompt := resolvedPrompt(f.match.ID, f.match.Users(), 2, domain.PromptResultBothAccepted)

	f.prompts.On("Respond", mock.Anything, f.match.ID, f.callee, true).Return(prompt, nil)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)
	f.matches.On("AdvanceStage", mock.Anything, f.match.ID, domain.StageOneComplete, domain.StageUnlocked).Return(nil)
	f.matches.On("MarkContactExchanged", mock.Anything, f.match.ID, mock.Anything).Return(nil)
	f.users.On("GetContactCard", mock.Anything, f.caller).
		Return(&domain.ContactCard{UserID: f.caller, Handles: map[string]string{"instagram": "@caller"}}, nil)
	f.users.On("GetContactCard", mock.Anything, f.callee).
		Return(&domain.ContactCard{UserID: f.callee, Handles: map[string]string{"instagram": "@callee"}}, nil)

	err := f.coordinator.RespondPrompt(context.Background(), f.match.ID, f.callee, true)
	assert.NoError(t, err)

	// Each side receives the other's contact card
	callerEvt, ok := f.notifier.lastOfType(f.caller, event.ContactExchange)
	assert.True(t, ok)
	assert.Equal(t, "@callee", callerEvt.Payload.(event.ContactExchangePayload).Contact["instagram"])

	calleeEvt, ok := f.notifier.lastOfType(f.callee, event.ContactExchange)
	assert.True(t, ok)
	assert.Equal(t, "@caller", calleeEvt.Payload.(event.ContactExchangePayload).Contact["instagram"])

	f.matches.AssertExpectations(t)
}

func TestRespondPromptWithoutOpenPrompt(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.prompts.On("Respond", mock.Anything, f.match.ID, f.caller, true).
		Return(nil, domain.ErrNoOpenPrompt)

	err := f.coordinator.RespondPrompt(context.Background(), f.match.ID, f.caller, true)
	assert.Equal(t, errors.ErrCodePromptNotFound, errors.CodeOf(err))
}

func TestPromptTimeoutResolvesDeclined(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)

	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonCompleted, mock.Anything).Return(nil)
	f.prompts.On("Create", mock.Anything, mock.AnythingOfType("*domain.StagePrompt")).Return(nil)

	declined := resolvedPrompt(f.match.ID, f.match.Users(), 1, domain.PromptResultDeclined)
	f.prompts.On("ResolveExpired", mock.Anything, f.match.ID).Return(declined, true, nil)
	f.matches.On("GetByID", mock.Anything, f.match.ID).Return(f.match, nil)

	// Call completes, prompt opens, nobody votes, timeout resolves it
	assert.Eventually(t, func() bool {
		return f.notifier.has(f.caller, event.StagePromptResult)
	}, time.Second, 5*time.Millisecond)

	evt, _ := f.notifier.lastOfType(f.caller, event.StagePromptResult)
	assert.False(t, evt.Payload.(event.StagePromptResultPayload).BothAccepted)
	f.matches.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPromptTimeoutLosesToRacingVote(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.initiate(t, 1)
	f.accept(t)

	f.calls.On("MarkEnded", mock.Anything, mock.Anything, constants.EndReasonCompleted, mock.Anything).Return(nil)
	f.prompts.On("Create", mock.Anything, mock.AnythingOfType("*domain.StagePrompt")).Return(nil)

	// The row was already resolved by a vote when the expiry transaction ran
	f.prompts.On("ResolveExpired", mock.Anything, f.match.ID).Return(nil, false, nil)

	time.Sleep(testConfig().StageOneDuration + 3*testConfig().PromptTimeout)

	assert.False(t, f.notifier.has(f.caller, event.StagePromptResult))
	f.matches.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecoverClosesDanglingCalls(t *testing.T) {
	f := newFixture(domain.StageFresh)
	f.calls.On("CloseDangling", mock.Anything).Return(int64(3), nil)

	assert.NoError(t, f.coordinator.Recover(context.Background()))
	f.calls.AssertExpectations(t)
}
