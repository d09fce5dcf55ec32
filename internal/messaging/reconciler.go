package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Reconciler removes messages whose conversation no longer exists. Those are
// left behind when a cascade delete fails between its two steps, or when a send
// races with a delete of the same conversation.
type Reconciler struct {
	conversations ConversationStore
	messages      MessageStore
	log           zerolog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(conversations ConversationStore, messages MessageStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		conversations: conversations,
		messages:      messages,
		log:           log.With().Str("component", "reconciler").Logger(),
	}
}

// Sweep runs one pass and returns how many orphaned messages it deleted.
func (r *Reconciler) Sweep(ctx context.Context) (int64, error) {
	referenced, err := r.messages.ConversationIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list referenced conversations: %w", err)
	}
	if len(referenced) == 0 {
		return 0, nil
	}

	existing, err := r.conversations.ExistingIDs(ctx, referenced)
	if err != nil {
		return 0, fmt.Errorf("check conversations: %w", err)
	}

	orphans := lo.Reject(referenced, func(id bson.ObjectID, _ int) bool { return existing[id] })

	var total int64
	for _, id := range orphans {
		n, err := r.messages.DeleteByConversation(ctx, id)
		if err != nil {
			return total, fmt.Errorf("delete orphans of %s: %w", id.Hex(), err)
		}
		total += n
		r.log.Info().
			Str("conversation_id", id.Hex()).
			Int64("messages_deleted", n).
			Msg("removed orphaned messages")
	}
	return total, nil
}

// Run sweeps every interval until ctx is cancelled. Sweep errors are logged
// and the next tick tries again.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("reconcile sweep failed")
			}
		}
	}
}
