package busy

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(&logger.Config{Level: "error", Format: "json"})
	os.Exit(m.Run())
}

// Mocks

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(evt event.Event) {
	m.Called(evt)
}

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) SetStatus(ctx context.Context, userID uuid.UUID, status string) error {
	args := m.Called(ctx, userID, status)
	return args.Error(0)
}

func TestSetStatusBroadcastsChange(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	tracker := NewTracker(broadcaster, nil)
	userID := uuid.New()

	broadcaster.On("Broadcast", mock.MatchedBy(func(evt event.Event) bool {
		payload, ok := evt.Payload.(event.BusyStateEntry)
		return ok && evt.Type == event.UserBusyStateChanged &&
			payload.UserID == userID && payload.Status == constants.BusyStatusQueueing
	})).Return()

	tracker.SetStatus(userID, constants.BusyStatusQueueing)

	assert.Equal(t, constants.BusyStatusQueueing, tracker.Status(userID))
	assert.True(t, tracker.IsBusy(userID))
	broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestSetStatusIdempotent(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	tracker := NewTracker(broadcaster, nil)
	userID := uuid.New()

	broadcaster.On("Broadcast", mock.Anything).Return()

	tracker.SetStatus(userID, constants.BusyStatusInCall)
	tracker.SetStatus(userID, constants.BusyStatusInCall)

	// The repeated transition must not rebroadcast
	broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestUnknownUserIsAvailable(t *testing.T) {
	tracker := NewTracker(nil, nil)

	assert.Equal(t, constants.BusyStatusAvailable, tracker.Status(uuid.New()))
	assert.False(t, tracker.IsBusy(uuid.New()))
}

func TestClearResetsToAvailable(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	tracker := NewTracker(broadcaster, nil)
	userID := uuid.New()

	broadcaster.On("Broadcast", mock.Anything).Return()

	tracker.SetStatus(userID, constants.BusyStatusConnecting)
	tracker.Clear(userID)

	assert.False(t, tracker.IsBusy(userID))
	assert.Empty(t, tracker.Snapshot())
}

func TestClearWhenAlreadyAvailableIsNoOp(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	tracker := NewTracker(broadcaster, nil)

	tracker.Clear(uuid.New())

	broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything)
}

func TestSnapshotListsOnlyBusyUsers(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	tracker := NewTracker(broadcaster, nil)
	busy1 := uuid.New()
	busy2 := uuid.New()

	broadcaster.On("Broadcast", mock.Anything).Return()

	tracker.SetStatus(busy1, constants.BusyStatusQueueing)
	tracker.SetStatus(busy2, constants.BusyStatusInCall)
	tracker.SetStatus(uuid.New(), constants.BusyStatusAvailable)

	snapshot := tracker.Snapshot()
	assert.Len(t, snapshot, 2)

	statuses := make(map[uuid.UUID]string)
	for _, entry := range snapshot {
		statuses[entry.UserID] = entry.Status
	}
	assert.Equal(t, constants.BusyStatusQueueing, statuses[busy1])
	assert.Equal(t, constants.BusyStatusInCall, statuses[busy2])
}

func TestMirrorFailureDoesNotBlock(t *testing.T) {
	broadcaster := new(MockBroadcaster)
	mirror := new(MockMirror)
	tracker := NewTracker(broadcaster, mirror)
	userID := uuid.New()

	broadcaster.On("Broadcast", mock.Anything).Return()
	mirror.On("SetStatus", mock.Anything, userID, constants.BusyStatusInCall).
		Return(assert.AnError)

	tracker.SetStatus(userID, constants.BusyStatusInCall)

	// Authoritative state updates even when the mirror write fails
	assert.Equal(t, constants.BusyStatusInCall, tracker.Status(userID))
	mirror.AssertExpectations(t)
}
