package memory

import (
	"context"
	"slices"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

// MessagesStore is the in-memory messages collection.
type MessagesStore struct {
	s *Store
}

// chronological orders messages oldest first with the id as tie breaker.
func chronological(a, b *data.Message) int {
	switch {
	case b.After(a):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// Insert stores msg, assigning an id when it has none.
func (m *MessagesStore) Insert(_ context.Context, msg *data.Message) error {
	if msg.ID.IsZero() {
		msg.ID = bson.NewObjectID()
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// GetByID finds a message by id.
func (m *MessagesStore) GetByID(_ context.Context, id bson.ObjectID) (*data.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	msg, ok := m.s.messages[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneMessage(msg), nil
}

// GetByIDs returns the messages found among ids.
func (m *MessagesStore) GetByIDs(_ context.Context, ids []bson.ObjectID) ([]*data.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var out []*data.Message
	for _, id := range lo.Uniq(ids) {
		if msg, ok := m.s.messages[id]; ok {
			out = append(out, cloneMessage(msg))
		}
	}
	return out, nil
}

// ListByConversation returns a conversation's messages, oldest first.
func (m *MessagesStore) ListByConversation(_ context.Context, convID bson.ObjectID) ([]*data.Message, error) {
	out := m.inConversation(convID)
	slices.SortFunc(out, chronological)
	return out, nil
}

// MarkRead adds userID to the read set of each listed message that lacks it.
func (m *MessagesStore) MarkRead(_ context.Context, ids []bson.ObjectID, userID bson.ObjectID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var n int64
	for _, id := range lo.Uniq(ids) {
		msg, ok := m.s.messages[id]
		if !ok || msg.IsReadBy(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		n++
	}
	return n, nil
}

// Latest returns the newest message of a conversation, or nil.
func (m *MessagesStore) Latest(_ context.Context, convID bson.ObjectID) (*data.Message, error) {
	msgs := m.inConversation(convID)
	if len(msgs) == 0 {
		return nil, nil
	}
	return slices.MaxFunc(msgs, chronological), nil
}

// Delete removes a message.
func (m *MessagesStore) Delete(_ context.Context, id bson.ObjectID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.messages[id]; !ok {
		return data.ErrNotFound
	}
	delete(m.s.messages, id)
	return nil
}

// DeleteByConversation removes every message of a conversation.
func (m *MessagesStore) DeleteByConversation(_ context.Context, convID bson.ObjectID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var n int64
	for id, msg := range m.s.messages {
		if msg.ConversationID == convID {
			delete(m.s.messages, id)
			n++
		}
	}
	return n, nil
}

// ConversationIDs returns every conversation id referenced by a message.
func (m *MessagesStore) ConversationIDs(_ context.Context) ([]bson.ObjectID, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	ids := lo.Map(lo.Values(m.s.messages), func(msg *data.Message, _ int) bson.ObjectID { return msg.ConversationID })
	return lo.Uniq(ids), nil
}

// CountUnread counts userID's unread messages per conversation. Conversations
// with nothing unread are absent.
func (m *MessagesStore) CountUnread(_ context.Context, userID bson.ObjectID, convIDs []bson.ObjectID) (map[bson.ObjectID]int64, error) {
	wanted := lo.SliceToMap(convIDs, func(id bson.ObjectID) (bson.ObjectID, bool) { return id, true })

	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	counts := make(map[bson.ObjectID]int64)
	for _, msg := range m.s.messages {
		if wanted[msg.ConversationID] && !msg.IsReadBy(userID) {
			counts[msg.ConversationID]++
		}
	}
	return counts, nil
}

func (m *MessagesStore) inConversation(convID bson.ObjectID) []*data.Message {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var out []*data.Message
	for _, msg := range m.s.messages {
		if msg.ConversationID == convID {
			out = append(out, cloneMessage(msg))
		}
	}
	return out
}
