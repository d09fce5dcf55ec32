package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

func TestUsers_CreateRejectsDuplicates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	users := New().Users()

	u, err := users.CreateUser(ctx, "alice", "Alice@Example.com", "hash")
	req.NoError(err)
	req.Equal("alice@example.com", u.Email)
	req.Equal(data.DefaultAvatar, u.Avatar)

	_, err = users.CreateUser(ctx, "alice2", "alice@example.com", "hash")
	req.ErrorIs(err, data.ErrUserExists)
	_, err = users.CreateUser(ctx, "alice", "other@example.com", "hash")
	req.ErrorIs(err, data.ErrUserExists)

	got, err := users.GetUserByEmail(ctx, " ALICE@example.com ")
	req.NoError(err)
	req.Equal(u.ID, got.ID)

	_, err = users.GetUserByID(ctx, bson.NewObjectID())
	req.ErrorIs(err, data.ErrNotFound)
}

func TestUsers_UpdateAndDelete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	users := New().Users()

	alice, err := users.CreateUser(ctx, "alice", "alice@example.com", "hash")
	req.NoError(err)
	_, err = users.CreateUser(ctx, "bob", "bob@example.com", "hash")
	req.NoError(err)

	alice.Bio = "hi"
	alice.Email = " Alice.New@Example.com"
	req.NoError(users.UpdateUser(ctx, alice))

	got, err := users.GetUserByID(ctx, alice.ID)
	req.NoError(err)
	req.Equal("hi", got.Bio)
	req.Equal("alice.new@example.com", got.Email)
	req.False(got.UpdatedAt.Before(got.CreatedAt))

	// keeping its own username is not a conflict, taking bob's is
	req.NoError(users.UpdateUser(ctx, got))
	got.Username = "bob"
	req.ErrorIs(users.UpdateUser(ctx, got), data.ErrUserExists)
	still, err := users.GetUserByID(ctx, alice.ID)
	req.NoError(err)
	req.Equal("alice", still.Username)

	req.NoError(users.DeleteUser(ctx, alice.ID))
	req.ErrorIs(users.DeleteUser(ctx, alice.ID), data.ErrNotFound)
	req.ErrorIs(users.UpdateUser(ctx, still), data.ErrNotFound)
}

func TestConversations_FindOrCreateConcurrent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	convs := New().Conversations()
	a, b := bson.NewObjectID(), bson.NewObjectID()

	const workers = 32
	ids := make([]bson.ObjectID, workers)
	created := make([]bool, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			c, ok, err := convs.FindOrCreate(ctx, x, y)
			if err == nil {
				ids[i], created[i] = c.ID, ok
			}
		}()
	}
	wg.Wait()

	n := 0
	for i := range workers {
		req.Equal(ids[0], ids[i])
		if created[i] {
			n++
		}
	}
	req.Equal(1, n, "exactly one call creates the conversation")

	list, err := convs.ListForUser(ctx, a, 0)
	req.NoError(err)
	req.Len(list, 1)
}

func TestConversations_AdvanceOnlyMovesForward(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	convs := New().Conversations()
	conv, _, err := convs.FindOrCreate(ctx, bson.NewObjectID(), bson.NewObjectID())
	req.NoError(err)

	base := data.Now()
	newer := &data.Message{ID: bson.NewObjectID(), CreatedAt: base.Add(time.Second)}
	older := &data.Message{ID: bson.NewObjectID(), CreatedAt: base}

	req.NoError(convs.AdvanceLastMessage(ctx, conv.ID, newer))
	req.NoError(convs.AdvanceLastMessage(ctx, conv.ID, older))

	got, err := convs.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.Equal(newer.ID, *got.LastMessageID)
	req.True(got.UpdatedAt.Equal(newer.CreatedAt))

	// a repair naming a message that no longer holds the pointer is ignored
	req.NoError(convs.RepairLastMessage(ctx, conv.ID, older.ID, nil))
	got, err = convs.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.NotNil(got.LastMessageID)

	req.NoError(convs.RepairLastMessage(ctx, conv.ID, newer.ID, nil))
	got, err = convs.GetByID(ctx, conv.ID)
	req.NoError(err)
	req.Nil(got.LastMessageID)
	req.Nil(got.LastMessageAt)
}

func TestConversations_ListOrderAndLimit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	convs := New().Conversations()
	me := bson.NewObjectID()

	var ids []bson.ObjectID
	base := data.Now()
	for i := range 3 {
		c, _, err := convs.FindOrCreate(ctx, me, bson.NewObjectID())
		req.NoError(err)
		msg := &data.Message{ID: bson.NewObjectID(), CreatedAt: base.Add(time.Duration(i+1) * time.Minute)}
		req.NoError(convs.AdvanceLastMessage(ctx, c.ID, msg))
		ids = append(ids, c.ID)
	}

	list, err := convs.ListForUser(ctx, me, 0)
	req.NoError(err)
	req.Len(list, 3)
	req.Equal([]bson.ObjectID{ids[2], ids[1], ids[0]}, []bson.ObjectID{list[0].ID, list[1].ID, list[2].ID})

	list, err = convs.ListForUser(ctx, me, 2)
	req.NoError(err)
	req.Len(list, 2)

	req.NoError(convs.Delete(ctx, ids[0]))
	req.ErrorIs(convs.Delete(ctx, ids[0]), data.ErrNotFound)

	existing, err := convs.ExistingIDs(ctx, ids)
	req.NoError(err)
	req.False(existing[ids[0]])
	req.True(existing[ids[1]])
}

func TestMessages_ReadTrackingAndOrdering(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	msgs := New().Messages()
	conv, sender, reader := bson.NewObjectID(), bson.NewObjectID(), bson.NewObjectID()

	at := data.Now()
	first := &data.Message{ConversationID: conv, SenderID: sender, Content: "a", ReadBy: []bson.ObjectID{sender}, CreatedAt: at}
	second := &data.Message{ConversationID: conv, SenderID: sender, Content: "b", ReadBy: []bson.ObjectID{sender}, CreatedAt: at}
	req.NoError(msgs.Insert(ctx, second))
	req.NoError(msgs.Insert(ctx, first))

	list, err := msgs.ListByConversation(ctx, conv)
	req.NoError(err)
	req.Len(list, 2)
	req.False(list[0].After(list[1]))

	counts, err := msgs.CountUnread(ctx, reader, []bson.ObjectID{conv})
	req.NoError(err)
	req.EqualValues(2, counts[conv])

	n, err := msgs.MarkRead(ctx, []bson.ObjectID{first.ID, second.ID}, reader)
	req.NoError(err)
	req.EqualValues(2, n)
	n, err = msgs.MarkRead(ctx, []bson.ObjectID{first.ID}, reader)
	req.NoError(err)
	req.Zero(n)

	counts, err = msgs.CountUnread(ctx, reader, []bson.ObjectID{conv})
	req.NoError(err)
	req.NotContains(counts, conv)

	latest, err := msgs.Latest(ctx, conv)
	req.NoError(err)
	req.Equal(list[1].ID, latest.ID)

	deleted, err := msgs.DeleteByConversation(ctx, conv)
	req.NoError(err)
	req.EqualValues(2, deleted)

	latest, err = msgs.Latest(ctx, conv)
	req.NoError(err)
	req.Nil(latest)
}

func TestMessages_ReturnedCopiesAreDetached(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	msgs := New().Messages()
	msg := &data.Message{ConversationID: bson.NewObjectID(), Content: "x", CreatedAt: data.Now()}
	req.NoError(msgs.Insert(ctx, msg))

	got, err := msgs.GetByID(ctx, msg.ID)
	req.NoError(err)
	got.ReadBy = append(got.ReadBy, bson.NewObjectID())

	again, err := msgs.GetByID(ctx, msg.ID)
	req.NoError(err)
	req.Empty(again.ReadBy)
}
