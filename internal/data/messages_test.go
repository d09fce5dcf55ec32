package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a, b := bson.NewObjectID(), bson.NewObjectID()
	if PairKey(a, b) != PairKey(b, a) {
		t.Fatalf("pair key depends on argument order")
	}
	if PairKey(a, b) == PairKey(a, bson.NewObjectID()) {
		t.Fatalf("distinct pairs share a key")
	}
}

func TestMessageAfterBreaksTiesOnID(t *testing.T) {
	at := Now()
	first := &Message{ID: bson.NewObjectID(), CreatedAt: at}
	second := &Message{ID: bson.NewObjectID(), CreatedAt: at}

	if !second.After(first) || first.After(second) {
		t.Fatalf("expected later id to order after earlier id at equal times")
	}

	older := &Message{ID: second.ID, CreatedAt: at.Add(-time.Second)}
	if older.After(first) {
		t.Fatalf("expected created_at to win over id")
	}
}

func TestConversationsFindOrCreateConcurrent(t *testing.T) {
	c := setupDB(t)
	convs := NewConversationsStore(c.ConversationsCollection())
	ctx := context.Background()
	a, b := bson.NewObjectID(), bson.NewObjectID()

	const workers = 16
	ids := make([]bson.ObjectID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			conv, _, err := convs.FindOrCreate(ctx, x, y)
			errs[i] = err
			if err == nil {
				ids[i] = conv.ID
			}
		}()
	}
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("FindOrCreate %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected one conversation, got %s and %s", ids[0].Hex(), ids[i].Hex())
		}
	}

	n, err := c.ConversationsCollection().CountDocuments(ctx, bson.M{"pair_key": PairKey(a, b)})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 conversation document, got %d", n)
	}
}

func TestMessagesLifecycle(t *testing.T) {
	c := setupDB(t)
	convs := NewConversationsStore(c.ConversationsCollection())
	msgs := NewMessagesStore(c.MessagesCollection())
	ctx := context.Background()
	alice, bob := bson.NewObjectID(), bson.NewObjectID()

	conv, created, err := convs.FindOrCreate(ctx, alice, bob)
	if err != nil || !created {
		t.Fatalf("FindOrCreate: created=%v err=%v", created, err)
	}

	now := Now()
	first := &Message{ConversationID: conv.ID, SenderID: alice, Content: "hi bob", ReadBy: []bson.ObjectID{alice}, CreatedAt: now}
	second := &Message{ConversationID: conv.ID, SenderID: bob, Content: "hello alice", ReadBy: []bson.ObjectID{bob}, CreatedAt: now.Add(time.Second)}
	for _, m := range []*Message{first, second} {
		if err := msgs.Insert(ctx, m); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// out of order advance must keep the newest pointer
	if err := convs.AdvanceLastMessage(ctx, conv.ID, second); err != nil {
		t.Fatalf("AdvanceLastMessage failed: %v", err)
	}
	if err := convs.AdvanceLastMessage(ctx, conv.ID, first); err != nil {
		t.Fatalf("AdvanceLastMessage failed: %v", err)
	}
	got, err := convs.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LastMessageID == nil || *got.LastMessageID != second.ID {
		t.Fatalf("expected last message %s, got %v", second.ID.Hex(), got.LastMessageID)
	}
	if !got.UpdatedAt.Equal(second.CreatedAt) {
		t.Fatalf("expected updated_at %v, got %v", second.CreatedAt, got.UpdatedAt)
	}

	// history
	history, err := msgs.ListByConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListByConversation failed: %v", err)
	}
	if len(history) != 2 || history[0].ID != first.ID {
		t.Fatalf("unexpected history order")
	}

	// unread + mark read
	counts, err := msgs.CountUnread(ctx, alice, []bson.ObjectID{conv.ID})
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if counts[conv.ID] != 1 {
		t.Fatalf("expected 1 unread for alice, got %d", counts[conv.ID])
	}
	n, err := msgs.MarkRead(ctx, []bson.ObjectID{first.ID, second.ID}, alice)
	if err != nil || n != 1 {
		t.Fatalf("MarkRead: n=%d err=%v", n, err)
	}

	// delete the last message and repair
	if err := msgs.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	latest, err := msgs.Latest(ctx, conv.ID)
	if err != nil || latest == nil || latest.ID != first.ID {
		t.Fatalf("Latest: %v err=%v", latest, err)
	}
	if err := convs.RepairLastMessage(ctx, conv.ID, second.ID, latest); err != nil {
		t.Fatalf("RepairLastMessage failed: %v", err)
	}
	got, _ = convs.GetByID(ctx, conv.ID)
	if got.LastMessageID == nil || *got.LastMessageID != first.ID {
		t.Fatalf("expected repaired pointer %s", first.ID.Hex())
	}

	// orphan detection after conversation delete
	if err := convs.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("Delete conversation failed: %v", err)
	}
	referenced, err := msgs.ConversationIDs(ctx)
	if err != nil {
		t.Fatalf("ConversationIDs failed: %v", err)
	}
	existing, err := convs.ExistingIDs(ctx, referenced)
	if err != nil {
		t.Fatalf("ExistingIDs failed: %v", err)
	}
	if existing[conv.ID] {
		t.Fatalf("deleted conversation reported as existing")
	}
	deleted, err := msgs.DeleteByConversation(ctx, conv.ID)
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteByConversation: n=%d err=%v", deleted, err)
	}
}
