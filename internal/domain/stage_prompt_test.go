package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewStagePromptStartsOpen(t *testing.T) {
	users := [2]uuid.UUID{uuid.New(), uuid.New()}
	prompt := NewStagePrompt(uuid.New(), 1, users, time.Minute)

	assert.False(t, prompt.Resolved())
	assert.False(t, prompt.AllResponded())
	assert.False(t, prompt.AllAccepted())
	assert.Len(t, prompt.Responses, 2)
	assert.WithinDuration(t, time.Now().Add(time.Minute), prompt.ExpiresAt, time.Second)
}

func TestStagePromptAllAccepted(t *testing.T) {
	users := [2]uuid.UUID{uuid.New(), uuid.New()}
	prompt := NewStagePrompt(uuid.New(), 1, users, time.Minute)

	yes := true
	prompt.Responses[users[0]] = &yes
	assert.False(t, prompt.AllResponded())
	assert.False(t, prompt.AllAccepted())

	prompt.Responses[users[1]] = &yes
	assert.True(t, prompt.AllResponded())
	assert.True(t, prompt.AllAccepted())
}

func TestRecordOverwritesEarlierVote(t *testing.T) {
	users := [2]uuid.UUID{uuid.New(), uuid.New()}
	prompt := NewStagePrompt(uuid.New(), 1, users, time.Minute)

	// A changed mind before resolution wins over the earlier vote
	assert.NoError(t, prompt.Record(users[0], true))
	assert.NoError(t, prompt.Record(users[0], false))

	assert.False(t, prompt.Resolved())
	assert.False(t, *prompt.Responses[users[0]])

	assert.NoError(t, prompt.Record(users[1], true))
	assert.True(t, prompt.Resolved())
	assert.Equal(t, PromptResultDeclined, *prompt.Result)
}

func TestRecordRevoteToAcceptStillUnlocks(t *testing.T) {
	users := [2]uuid.UUID{uuid.New(), uuid.New()}
	prompt := NewStagePrompt(uuid.New(), 1, users, time.Minute)

	assert.NoError(t, prompt.Record(users[0], false))
	assert.NoError(t, prompt.Record(users[0], true))
	assert.NoError(t, prompt.Record(users[1], true))

	assert.True(t, prompt.Resolved())
	assert.Equal(t, PromptResultBothAccepted, *prompt.Result)
}

func TestRecordRejectsNonParticipant(t *testing.T) {
	users := [2]uuid.UUID{uuid.New(), uuid.New()}
	prompt := NewStagePrompt(uuid.New(), 1, users, time.Minute)

	err := prompt.Record(uuid.New(), true)
	assert.ErrorIs(t, err, ErrNotPromptParticipant)
	assert.False(t, prompt.AllResponded())
}

func TestStagePromptSingleDeclineFails(t *testing.T) {
	users := [2]uuid.UUID{uuid.New(), uuid.New()}
	prompt := NewStagePrompt(uuid.New(), 2, users, time.Minute)

	yes, no := true, false
	prompt.Responses[users[0]] = &yes
	prompt.Responses[users[1]] = &no

	assert.True(t, prompt.AllResponded())
	assert.False(t, prompt.AllAccepted())
}
