package messaging_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data/memory"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

// flakyConversations fails AdvanceLastMessage while failing is set.
type flakyConversations struct {
	*memory.ConversationsStore

	mu      sync.Mutex
	failing error
}

func (c *flakyConversations) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = err
}

func (c *flakyConversations) AdvanceLastMessage(ctx context.Context, convID bson.ObjectID, msg *data.Message) error {
	c.mu.Lock()
	err := c.failing
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.ConversationsStore.AdvanceLastMessage(ctx, convID, msg)
}

// hookedMessages runs afterLatest once, right after the first Latest call
// returns and before the caller acts on its result.
type hookedMessages struct {
	*memory.MessagesStore

	once        sync.Once
	afterLatest func()
}

func (m *hookedMessages) Latest(ctx context.Context, convID bson.ObjectID) (*data.Message, error) {
	latest, err := m.MessagesStore.Latest(ctx, convID)
	if m.afterLatest != nil {
		m.once.Do(m.afterLatest)
	}
	return latest, err
}

// service builds a Service over f's users with the given stores.
func (f *fixture) service(convs messaging.ConversationStore, msgs messaging.MessageStore, opts ...messaging.Option) *messaging.Service {
	return messaging.New(f.store.Users(), convs, msgs, f.store, zerolog.Nop(), opts...)
}

// scriptedClock returns the given times in order.
func scriptedClock(times ...time.Time) func() time.Time {
	var (
		mu sync.Mutex
		i  int
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		i++
		return t
	}
}

func TestSendMessage_PointerUpdateFailureIsReported(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	convs := &flakyConversations{ConversationsStore: f.store.Conversations()}
	svc := f.service(convs, f.store.Messages(), messaging.WithClock(tickingClock()))

	first, err := svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{RecipientID: f.bob.ID, Content: "one"})
	req.NoError(err)

	timeout := errors.New("write timeout")
	convs.fail(timeout)
	_, err = svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{ConversationID: first.ConversationID, Content: "two"})
	req.ErrorIs(err, timeout)
	req.NotErrorIs(err, messaging.ErrInvalidArgument)
	req.NotErrorIs(err, messaging.ErrNotFound)

	// the next successful send moves the pointer past the stranded message
	convs.fail(nil)
	third, err := svc.SendMessage(ctx, f.bob.ID, messaging.SendInput{ConversationID: first.ConversationID, Content: "three"})
	req.NoError(err)
	req.Equal(third.ID, *f.lastMessageID(t, first.ConversationID))
}

func TestDeleteMessage_ConcurrentDeleteOfReplacement(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, messaging.WithClock(tickingClock()))
	ctx := context.Background()

	m0, err := f.svc.SendMessage(ctx, f.bob.ID, messaging.SendInput{RecipientID: f.alice.ID, Content: "zero"})
	req.NoError(err)
	m1, err := f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{ConversationID: m0.ConversationID, Content: "one"})
	req.NoError(err)
	m2, err := f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{ConversationID: m0.ConversationID, Content: "two"})
	req.NoError(err)

	msgs := &hookedMessages{MessagesStore: f.store.Messages()}
	svc := f.service(f.store.Conversations(), msgs)

	// deleting m2 picks m1 as the replacement; m1 is deleted before the
	// pointer is written, and that delete skips repair because the pointer
	// still names m2
	hookErr := make(chan error, 1)
	msgs.afterLatest = func() {
		hookErr <- svc.DeleteMessage(ctx, m1.ID, f.alice.ID)
	}

	req.NoError(svc.DeleteMessage(ctx, m2.ID, f.alice.ID))
	req.NoError(<-hookErr)

	last := f.lastMessageID(t, m0.ConversationID)
	req.NotNil(last)
	req.Equal(m0.ID, *last)
}

func TestDeleteMessage_ConcurrentDeleteOfLastRemaining(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, messaging.WithClock(tickingClock()))
	ctx := context.Background()

	m1, err := f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{RecipientID: f.bob.ID, Content: "one"})
	req.NoError(err)
	m2, err := f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{ConversationID: m1.ConversationID, Content: "two"})
	req.NoError(err)

	msgs := &hookedMessages{MessagesStore: f.store.Messages()}
	svc := f.service(f.store.Conversations(), msgs)
	hookErr := make(chan error, 1)
	msgs.afterLatest = func() {
		hookErr <- svc.DeleteMessage(ctx, m1.ID, f.alice.ID)
	}

	req.NoError(svc.DeleteMessage(ctx, m2.ID, f.alice.ID))
	req.NoError(<-hookErr)

	left, err := f.store.Messages().ListByConversation(ctx, m1.ConversationID)
	req.NoError(err)
	req.Empty(left)
	req.Nil(f.lastMessageID(t, m1.ConversationID))
}

func TestLastMessage_LateOlderSendKeepsNewerPointer(t *testing.T) {
	req := require.New(t)
	base := data.Now().Add(time.Hour)
	// the second send was stamped before the first but lands after it
	f := newFixture(t, messaging.WithClock(scriptedClock(
		base.Add(3*time.Millisecond),
		base.Add(1*time.Millisecond),
		base.Add(2*time.Millisecond),
	)))
	ctx := context.Background()

	newest, err := f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{RecipientID: f.bob.ID, Content: "newest"})
	req.NoError(err)
	_, err = f.svc.SendMessage(ctx, f.bob.ID, messaging.SendInput{ConversationID: newest.ConversationID, Content: "oldest"})
	req.NoError(err)
	_, err = f.svc.SendMessage(ctx, f.alice.ID, messaging.SendInput{ConversationID: newest.ConversationID, Content: "middle"})
	req.NoError(err)

	conv, err := f.store.Conversations().GetByID(ctx, newest.ConversationID)
	req.NoError(err)
	req.Equal(newest.ID, *conv.LastMessageID)
	req.True(conv.UpdatedAt.Equal(newest.CreatedAt))

	convs, err := f.svc.ListConversations(ctx, f.bob.ID, 0)
	req.NoError(err)
	req.Len(convs, 1)
	req.Equal("newest", convs[0].LastMessage.Content)
}

func TestLastMessage_ConcurrentSendsWithShuffledTimes(t *testing.T) {
	req := require.New(t)
	const n = 40

	base := data.Now().Add(time.Hour)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Millisecond)
	}
	rand.Shuffle(n, func(i, j int) { times[i], times[j] = times[j], times[i] })

	f := newFixture(t, messaging.WithClock(scriptedClock(times...)))
	ctx := context.Background()

	conv, err := f.svc.ResolveOrCreateConversation(ctx, f.alice.ID, f.bob.ID)
	req.NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender := f.alice.ID
			if i%2 == 0 {
				sender = f.bob.ID
			}
			_, err := f.svc.SendMessage(ctx, sender, messaging.SendInput{ConversationID: conv.ID, Content: "msg"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	latest, err := f.store.Messages().Latest(ctx, conv.ID)
	req.NoError(err)
	req.True(latest.CreatedAt.Equal(base.Add((n - 1) * time.Millisecond)))
	req.Equal(latest.ID, *f.lastMessageID(t, conv.ID))
}
