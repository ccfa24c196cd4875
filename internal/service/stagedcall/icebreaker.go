package stagedcall

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

// icebreakerLoop pushes conversation starters to both participants while
// their call is active. Runs on its own goroutine so a slow generator never
// blocks call timers; the stop channel closes during teardown. A failed
// generation skips the cycle, it never ends the call.
func (c *Coordinator) icebreakerLoop(matchID uuid.UUID, users [2]uuid.UUID, stop <-chan struct{}) {
	interests := c.loadInterests(users)

	c.pushIcebreakers(matchID, users, interests)

	ticker := time.NewTicker(c.cfg.IcebreakerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pushIcebreakers(matchID, users, interests)
		}
	}
}

func (c *Coordinator) loadInterests(users [2]uuid.UUID) [2][]string {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	var interests [2][]string
	for i, userID := range users {
		profile, err := c.users.GetProfile(ctx, userID)
		if err != nil {
			logger.Warn("failed to load profile for icebreakers",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		interests[i] = profile.Interests
	}
	return interests
}

func (c *Coordinator) pushIcebreakers(matchID uuid.UUID, users [2]uuid.UUID, interests [2][]string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.IcebreakerRequestTimeout)
	defer cancel()

	prompts, err := c.generator.Generate(ctx, interests[0], interests[1])
	if err != nil {
		logger.Warn("icebreaker generation skipped",
			zap.String("match_id", matchID.String()),
			zap.Error(err))
		if c.metrics != nil {
			c.metrics.IcebreakerCycle("error")
		}
		return
	}
	if len(prompts) == 0 {
		if c.metrics != nil {
			c.metrics.IcebreakerCycle("empty")
		}
		return
	}

	if c.metrics != nil {
		c.metrics.IcebreakerCycle("ok")
	}

	evt := event.Event{
		Type: event.StagedCallIcebreaker,
		Payload: event.IcebreakerPayload{
			MatchID: matchID,
			Prompts: prompts,
		},
	}
	c.notifier.Send(users[0], evt)
	c.notifier.Send(users[1], evt)
}
