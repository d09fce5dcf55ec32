package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Matching mongo.ErrNoDocuments
	"fmt"     // Wrapping driver errors

	"go.mongodb.org/mongo-driver/v2/bson"          // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo"         // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options" // Sort and find options
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	// coll is reference to "messages" collection in MongoDB
	// Set via NewMessagesStore() and used in all methods below
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll} // Store reference to MongoDB collection
}

// chronological is the sort used for message history: created_at then _id,
// so messages stored within the same millisecond keep a stable order.
var chronological = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// Insert stores msg. The id is assigned client-side before the insert so the
// caller can use it immediately.
func (m *MessagesStore) Insert(ctx context.Context, msg *Message) error {
	// Keep an id the caller already chose (tests, retries)
	if msg.ID.IsZero() {
		msg.ID = bson.NewObjectID()
	}

	// InsertOne adds the message document to MongoDB collection
	if _, err := m.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetByID finds a message by ObjectID.
func (m *MessagesStore) GetByID(ctx context.Context, id bson.ObjectID) (*Message, error) {
	var msg Message
	if err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		// No document found (message was deleted)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err // Database error
	}
	return &msg, nil
}

// GetByIDs loads the messages with the given ids; missing ids are skipped.
func (m *MessagesStore) GetByIDs(ctx context.Context, ids []bson.ObjectID) ([]*Message, error) {
	// An empty $in matches nothing; skip the round trip
	if len(ids) == 0 {
		return nil, nil
	}
	// No sort: callers index the result by id
	return m.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

// ListByConversation returns the full history of a conversation, oldest first.
func (m *MessagesStore) ListByConversation(ctx context.Context, convID bson.ObjectID) ([]*Message, error) {
	// Served by the (conversation_id, created_at, _id) index
	return m.find(ctx, bson.M{"conversation_id": convID}, options.Find().SetSort(chronological))
}

// MarkRead adds userID to read_by on the given messages. $addToSet keeps the
// set semantics and the $ne filter skips messages already read.
func (m *MessagesStore) MarkRead(ctx context.Context, ids []bson.ObjectID, userID bson.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	// UpdateMany applies the same update to every matching document
	res, err := m.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "read_by": bson.M{"$ne": userID}}, // Only the listed ids, not read yet
		bson.M{"$addToSet": bson.M{"read_by": userID}},                      // Append userID unless present
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	// ModifiedCount is how many messages became read by this call
	return res.ModifiedCount, nil
}

// Latest returns the newest message of a conversation, or nil when it has none.
func (m *MessagesStore) Latest(ctx context.Context, convID bson.ObjectID) (*Message, error) {
	// Reverse of chronological: newest first, so FindOne returns the latest
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"conversation_id": convID}, opts).Decode(&msg)
	// An empty conversation is not an error
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes a single message.
func (m *MessagesStore) Delete(ctx context.Context, id bson.ObjectID) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err // Database error
	}
	// A concurrent delete of the same message lands here
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByConversation removes every message of a conversation and returns how
// many were deleted.
func (m *MessagesStore) DeleteByConversation(ctx context.Context, convID bson.ObjectID) (int64, error) {
	// Inside WithinTransaction, ctx carries the session and this joins it
	res, err := m.coll.DeleteMany(ctx, bson.M{"conversation_id": convID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ConversationIDs returns every distinct conversation id referenced by a message.
func (m *MessagesStore) ConversationIDs(ctx context.Context) ([]bson.ObjectID, error) {
	// Single $group stage: one output document per distinct conversation_id
	// Used by the reconciler to find messages whose conversation is gone
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$conversation_id"}}}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err // Database error
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// Decode just the grouped _id
	var groups []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err // Error decoding documents
	}

	// Flatten to a plain id slice
	ids := make([]bson.ObjectID, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// CountUnread counts, per conversation, the messages userID has not read yet.
// Conversations without unread messages are absent from the map.
func (m *MessagesStore) CountUnread(ctx context.Context, userID bson.ObjectID, convIDs []bson.ObjectID) (map[bson.ObjectID]int64, error) {
	counts := make(map[bson.ObjectID]int64, len(convIDs))
	if len(convIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		// Stage 1: $match - unread messages in the listed conversations
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "conversation_id", Value: bson.D{{Key: "$in", Value: convIDs}}},
			{Key: "read_by", Value: bson.D{{Key: "$ne", Value: userID}}},
		}}},
		// Stage 2: $group - one count per conversation
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	// Execute the aggregation pipeline
	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	// Each row is one conversation: _id is the conversation id, count its unread total
	var rows []struct {
		ID    bson.ObjectID `bson:"_id"`
		Count int64         `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.ID] = r.Count
	}
	return counts, nil
}

// find runs a query and decodes every matching message.
func (m *MessagesStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*Message, error) {
	// Execute the query; Find returns a cursor to iterate results
	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err // Database error
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// All() reads all documents from cursor and decodes into messages slice
	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err // Error decoding documents
	}
	return messages, nil
}
