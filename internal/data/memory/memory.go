// Package memory implements the data stores in process memory. It backs the
// "memory" store driver for local development and the tests of packages that
// sit above the stores. Data is lost when the process exits.
package memory

import (
	"context"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

// Store holds every collection behind one lock.
type Store struct {
	mu sync.RWMutex

	users         map[bson.ObjectID]*data.User
	conversations map[bson.ObjectID]*data.Conversation
	pairs         map[string]bson.ObjectID
	messages      map[bson.ObjectID]*data.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:         make(map[bson.ObjectID]*data.User),
		conversations: make(map[bson.ObjectID]*data.Conversation),
		pairs:         make(map[string]bson.ObjectID),
		messages:      make(map[bson.ObjectID]*data.Message),
	}
}

// Users returns the users collection.
func (s *Store) Users() *UsersStore { return &UsersStore{s: s} }

// Conversations returns the conversations collection.
func (s *Store) Conversations() *ConversationsStore { return &ConversationsStore{s: s} }

// Messages returns the messages collection.
func (s *Store) Messages() *MessagesStore { return &MessagesStore{s: s} }

// WithinTransaction runs fn. Each store call is atomic on its own, there is
// no rollback across calls.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Documents are copied on the way in and out so callers never share memory
// with the store.

func cloneUser(u *data.User) *data.User {
	c := *u
	return &c
}

func cloneConversation(c *data.Conversation) *data.Conversation {
	out := *c
	out.Participants = slices.Clone(c.Participants)
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		out.LastMessageID = &id
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	return &out
}

func cloneMessage(m *data.Message) *data.Message {
	out := *m
	out.ReadBy = slices.Clone(m.ReadBy)
	return &out
}
