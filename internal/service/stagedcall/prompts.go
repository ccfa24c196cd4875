package stagedcall

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/constants"
	"github.com/Loonyc-c/flint-sub001/pkg/errors"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

// openPrompt persists and announces the post-call consensus prompt. Called
// with c.mu held, right after a completed call tears down.
func (c *Coordinator) openPrompt(matchID uuid.UUID, fromStage int, users [2]uuid.UUID) {
	prompt := domain.NewStagePrompt(matchID, fromStage, users, c.cfg.PromptTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	if err := c.prompts.Create(ctx, prompt); err != nil {
		// Without the record there is nothing to vote on; both sides simply
		// get no prompt and the match stays at its current stage
		logger.Error("failed to create stage prompt",
			zap.String("match_id", matchID.String()),
			zap.Error(err))
		return
	}

	c.promptTimers[matchID] = time.AfterFunc(c.cfg.PromptTimeout, func() {
		c.onPromptTimeout(matchID)
	})

	announce := event.Event{
		Type: event.StagePrompt,
		Payload: event.StagePromptPayload{
			MatchID:   matchID,
			FromStage: fromStage,
			ExpiresAt: prompt.ExpiresAt,
		},
	}
	c.notifier.Send(users[0], announce)
	c.notifier.Send(users[1], announce)
}

// RespondPrompt records one participant's vote. A repeated vote before
// resolution overwrites the previous one. When the second vote lands the
// prompt resolves: unanimous accepts advance the match stage and, at the
// final stage, trigger the contact reveal.
func (c *Coordinator) RespondPrompt(ctx context.Context, matchID, userID uuid.UUID, accepted bool) error {
	prompt, err := c.prompts.Respond(ctx, matchID, userID, accepted)
	if err != nil {
		if stderrors.Is(err, domain.ErrNoOpenPrompt) {
			return errors.PromptNotFoundError()
		}
		return errors.Wrap(errors.ErrCodeDatabase, "Failed to record vote", err)
	}

	if !prompt.Resolved() {
		return nil
	}

	c.cancelPromptTimer(matchID)
	c.finishPrompt(ctx, prompt)
	return nil
}

// onPromptTimeout fires when the vote window closes. A racing second vote
// may have resolved the prompt between the timer firing and the row lock
// being taken; in that case the vote wins and this is a no-op.
func (c *Coordinator) onPromptTimeout(matchID uuid.UUID) {
	c.cancelPromptTimer(matchID)

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	prompt, expired, err := c.prompts.ResolveExpired(ctx, matchID)
	if err != nil {
		logger.Error("failed to expire stage prompt",
			zap.String("match_id", matchID.String()),
			zap.Error(err))
		return
	}
	if !expired {
		return
	}

	c.finishPrompt(ctx, prompt)
}

// finishPrompt applies a resolved prompt's outcome: advance the match on
// unanimous accept, reveal contact at the unlock transition, and tell both
// participants the result.
func (c *Coordinator) finishPrompt(ctx context.Context, prompt *domain.StagePrompt) {
	match, err := c.matches.GetByID(ctx, prompt.MatchID)
	if err != nil {
		logger.Error("failed to load match for prompt result",
			zap.String("match_id", prompt.MatchID.String()),
			zap.Error(err))
		return
	}

	bothAccepted := prompt.Result != nil && *prompt.Result == domain.PromptResultBothAccepted
	newStage := match.Stage

	if bothAccepted {
		next := match.Stage.Next()
		if next != match.Stage {
			if err := c.matches.AdvanceStage(ctx, match.ID, match.Stage, next); err != nil {
				logger.Error("failed to advance match stage",
					zap.String("match_id", match.ID.String()),
					zap.String("from", string(match.Stage)),
					zap.Error(err))
			} else {
				newStage = next
				match.Stage = next
				if next == domain.StageUnlocked {
					c.reveal(ctx, match)
				}
			}
		}
	}

	if c.metrics != nil {
		result := domain.PromptResultDeclined
		if prompt.Result != nil {
			result = *prompt.Result
		}
		c.metrics.PromptResolved(result)
	}

	resultEvt := event.Event{
		Type: event.StagePromptResult,
		Payload: event.StagePromptResultPayload{
			MatchID:      prompt.MatchID,
			BothAccepted: bothAccepted,
			NewStage:     newStage,
		},
	}
	for userID := range prompt.Responses {
		c.notifier.Send(userID, resultEvt)
	}
}

func (c *Coordinator) cancelPromptTimer(matchID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer, ok := c.promptTimers[matchID]; ok {
		timer.Stop()
		delete(c.promptTimers, matchID)
	}
}
