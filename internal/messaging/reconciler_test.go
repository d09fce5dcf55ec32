package messaging_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

func TestReconciler_SweepRemovesOrphans(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	kept, err := f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{RecipientID: f.bob.ID, Content: "stay"})
	req.NoError(err)

	// a cascade that died after the conversation went but before its
	// messages did
	gone := bson.NewObjectID()
	for range 3 {
		req.NoError(f.store.Messages().Insert(ctx, &data.Message{
			ConversationID: gone,
			SenderID:       f.alice.ID,
			Content:        "orphan",
			ReadBy:         []bson.ObjectID{f.alice.ID},
			CreatedAt:      data.Now(),
		}))
	}

	r := messaging.NewReconciler(f.store.Conversations(), f.store.Messages(), zerolog.Nop())
	n, err := r.Sweep(ctx)
	req.NoError(err)
	req.EqualValues(3, n)

	left, err := f.store.Messages().ListByConversation(ctx, gone)
	req.NoError(err)
	req.Empty(left)
	stay, err := f.store.Messages().ListByConversation(ctx, kept.ConversationID)
	req.NoError(err)
	req.Len(stay, 1)

	n, err = r.Sweep(ctx)
	req.NoError(err)
	req.Zero(n)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := messaging.NewReconciler(f.store.Conversations(), f.store.Messages(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
