package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

// ConversationsStore is the in-memory conversations collection.
type ConversationsStore struct {
	s *Store
}

// FindOrCreate returns the conversation between a and b, creating it when
// absent. The pair index is checked and written under the same lock.
func (c *ConversationsStore) FindOrCreate(_ context.Context, a, b bson.ObjectID) (*data.Conversation, bool, error) {
	key := data.PairKey(a, b)

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if id, ok := c.s.pairs[key]; ok {
		return cloneConversation(c.s.conversations[id]), false, nil
	}

	now := data.Now()
	conv := &data.Conversation{
		ID:           bson.NewObjectID(),
		PairKey:      key,
		Participants: []bson.ObjectID{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.s.conversations[conv.ID] = conv
	c.s.pairs[key] = conv.ID
	return cloneConversation(conv), true, nil
}

// GetByID finds a conversation by id.
func (c *ConversationsStore) GetByID(_ context.Context, id bson.ObjectID) (*data.Conversation, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	conv, ok := c.s.conversations[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneConversation(conv), nil
}

// ListForUser returns userID's conversations, most recently updated first.
func (c *ConversationsStore) ListForUser(_ context.Context, userID bson.ObjectID, limit int64) ([]*data.Conversation, error) {
	c.s.mu.RLock()
	var out []*data.Conversation
	for _, conv := range c.s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	c.s.mu.RUnlock()

	slices.SortFunc(out, func(x, y *data.Conversation) int {
		if cmp := y.UpdatedAt.Compare(x.UpdatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(y.ID.Hex(), x.ID.Hex())
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AdvanceLastMessage moves the pointer to msg when msg is newer than the
// current last message, and bumps updated_at.
func (c *ConversationsStore) AdvanceLastMessage(_ context.Context, convID bson.ObjectID, msg *data.Message) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	conv, ok := c.s.conversations[convID]
	if !ok {
		return nil
	}

	if conv.LastMessageID == nil || newer(msg, *conv.LastMessageAt, *conv.LastMessageID) {
		id, at := msg.ID, msg.CreatedAt
		conv.LastMessageID = &id
		conv.LastMessageAt = &at
	}
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
	return nil
}

// RepairLastMessage moves the pointer off removedID while it still names it.
func (c *ConversationsStore) RepairLastMessage(_ context.Context, convID, removedID bson.ObjectID, latest *data.Message) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	conv, ok := c.s.conversations[convID]
	if !ok || conv.LastMessageID == nil || *conv.LastMessageID != removedID {
		return nil
	}
	if latest == nil {
		conv.LastMessageID = nil
		conv.LastMessageAt = nil
		return nil
	}
	id, at := latest.ID, latest.CreatedAt
	conv.LastMessageID = &id
	conv.LastMessageAt = &at
	return nil
}

// Delete removes a conversation. Its messages are left to the caller.
func (c *ConversationsStore) Delete(_ context.Context, id bson.ObjectID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	conv, ok := c.s.conversations[id]
	if !ok {
		return data.ErrNotFound
	}
	delete(c.s.pairs, conv.PairKey)
	delete(c.s.conversations, id)
	return nil
}

// ExistingIDs returns the subset of ids that still have a conversation.
func (c *ConversationsStore) ExistingIDs(_ context.Context, ids []bson.ObjectID) (map[bson.ObjectID]bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	existing := make(map[bson.ObjectID]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.s.conversations[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func newer(msg *data.Message, at time.Time, id bson.ObjectID) bool {
	return msg.After(&data.Message{ID: id, CreatedAt: at})
}
