package stagedcall

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Loonyc-c/flint-sub001/internal/domain"
	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

// reveal performs the one-time contact exchange when a match unlocks: each
// participant receives the other's contact card. The expiry on the payload is
// advisory; clients hide the card after it passes but the server keeps no
// copy of the rendered view.
func (c *Coordinator) reveal(ctx context.Context, match *domain.Match) {
	now := time.Now()
	expiresAt := now.Add(c.cfg.ContactDisplayDuration)

	for _, userID := range match.Users() {
		partnerID, _ := match.OtherUser(userID)

		card, err := c.users.GetContactCard(ctx, partnerID)
		if err != nil {
			logger.Error("failed to load contact card for reveal",
				zap.String("match_id", match.ID.String()),
				zap.String("user_id", partnerID.String()),
				zap.Error(err))
			continue
		}

		c.notifier.Send(userID, event.Event{
			Type: event.ContactExchange,
			Payload: event.ContactExchangePayload{
				MatchID:   match.ID,
				Contact:   card.Handles,
				ExpiresAt: expiresAt,
			},
		})
	}

	if err := c.matches.MarkContactExchanged(ctx, match.ID, now); err != nil {
		logger.Error("failed to mark contact exchanged",
			zap.String("match_id", match.ID.String()),
			zap.Error(err))
	}
}
