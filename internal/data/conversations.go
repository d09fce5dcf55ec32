package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Matching mongo.ErrNoDocuments
	"fmt"     // Wrapping driver errors

	"go.mongodb.org/mongo-driver/v2/bson"          // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo"         // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options" // Upsert, sort and projection options
)

// ConversationsStore provides conversation database operations.
type ConversationsStore struct {
	// coll is reference to "conversations" collection in MongoDB
	// Set via NewConversationsStore() and used in all methods below
	coll *mongo.Collection
}

// NewConversationsStore returns a ConversationsStore using given collection.
func NewConversationsStore(coll *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{coll: coll} // Store reference to MongoDB collection
}

// FindOrCreate returns the conversation between a and b, creating it if it does
// not exist yet. The boolean reports whether this call created it.
//
// The create is an upsert keyed on the canonical pair key, which has a unique
// index. Two racing upserts can still both attempt the insert; the loser gets a
// duplicate key error and re-reads the winner's document.
func (c *ConversationsStore) FindOrCreate(ctx context.Context, a, b bson.ObjectID) (*Conversation, bool, error) {
	// Same key for (a, b) and (b, a): the two hex ids sorted and joined
	key := PairKey(a, b)
	now := Now()
	filter := bson.M{"pair_key": key}

	// $setOnInsert only applies when the upsert inserts; an existing
	// conversation is left untouched
	update := bson.M{"$setOnInsert": bson.M{
		"participants": bson.A{a, b},
		"created_at":   now,
		"updated_at":   now,
	}}

	// SetUpsert(true): insert when no document matches the filter
	created := false
	res, err := c.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	switch {
	case err == nil:
		// UpsertedCount is 1 only for the call that inserted
		created = res.UpsertedCount > 0
	case mongo.IsDuplicateKeyError(err):
		// lost the race to a concurrent upsert for the same pair
	default:
		return nil, false, fmt.Errorf("upsert conversation: %w", err)
	}

	// Re-read by pair_key in every case; UpdateOne does not return the document
	var conv Conversation
	if err := c.coll.FindOne(ctx, filter).Decode(&conv); err != nil {
		return nil, false, fmt.Errorf("read conversation %s: %w", key, err)
	}
	return &conv, created, nil
}

// GetByID finds a conversation by ObjectID.
func (c *ConversationsStore) GetByID(ctx context.Context, id bson.ObjectID) (*Conversation, error) {
	var conv Conversation
	if err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		// Deleted or never existed
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err // Database error
	}
	return &conv, nil
}

// ListForUser returns the conversations userID participates in, most recently
// updated first. A limit of 0 returns all of them.
func (c *ConversationsStore) ListForUser(ctx context.Context, userID bson.ObjectID, limit int64) ([]*Conversation, error) {
	// bson.D keeps the sort keys ordered: updated_at first, _id breaks ties
	opts := options.Find().SetSort(bson.D{
		{Key: "updated_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	// 0 means no limit
	if limit > 0 {
		opts.SetLimit(limit)
	}

	// participants is an array; an equality match finds any element
	cursor, err := c.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err // Database error
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// All() reads all documents from cursor and decodes into convs slice
	var convs []*Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err // Error decoding documents
	}
	return convs, nil
}

// AdvanceLastMessage points the conversation at msg unless it already points at
// a newer message, and bumps updated_at to the message time.
//
// Concurrent sends race on this write. Guarding the $set on the stored
// (last_message_at, last_message) pair means whichever order the writes land
// in, the pointer ends on the message with the greatest creation time.
func (c *ConversationsStore) AdvanceLastMessage(ctx context.Context, convID bson.ObjectID, msg *Message) error {
	// Match only while the stored pointer is older than msg
	filter := bson.M{
		"_id": convID,
		"$or": bson.A{
			// No pointer yet (first message or every message deleted)
			bson.M{"last_message_at": bson.M{"$exists": false}},
			// Stored message is strictly older
			bson.M{"last_message_at": bson.M{"$lt": msg.CreatedAt}},
			// Same millisecond: the ObjectID breaks the tie
			bson.M{"last_message_at": msg.CreatedAt, "last_message": bson.M{"$lt": msg.ID}},
		},
	}
	update := bson.M{
		"$set": bson.M{"last_message": msg.ID, "last_message_at": msg.CreatedAt},
		// $max never moves updated_at backwards
		"$max": bson.M{"updated_at": msg.CreatedAt},
	}

	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("advance last message: %w", err)
	}
	// Matched means msg is now the pointer
	if res.MatchedCount > 0 {
		return nil
	}

	// A newer message already holds the pointer; still record the activity
	_, err = c.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$max": bson.M{"updated_at": msg.CreatedAt}},
	)
	if err != nil {
		return fmt.Errorf("bump conversation updated_at: %w", err)
	}
	return nil
}

// RepairLastMessage moves the pointer off a removed message. It only applies
// while the pointer still names removedID, so a send that landed in between
// keeps its newer pointer. A nil latest clears the pointer.
func (c *ConversationsStore) RepairLastMessage(ctx context.Context, convID, removedID bson.ObjectID, latest *Message) error {
	// Compare-and-set: no match means someone already moved the pointer
	filter := bson.M{"_id": convID, "last_message": removedID}

	var update bson.M
	if latest == nil {
		// Conversation is now empty; drop both pointer fields
		update = bson.M{"$unset": bson.M{"last_message": "", "last_message_at": ""}}
	} else {
		// updated_at is left alone: deletes do not count as activity
		update = bson.M{"$set": bson.M{"last_message": latest.ID, "last_message_at": latest.CreatedAt}}
	}

	// A zero MatchedCount is not an error here
	if _, err := c.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("repair last message: %w", err)
	}
	return nil
}

// Delete removes a conversation document.
func (c *ConversationsStore) Delete(ctx context.Context, id bson.ObjectID) error {
	// Messages are removed separately by the caller (see DeleteByConversation)
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err // Database error
	}
	// DeletedCount is 0 when nothing matched the id
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistingIDs returns the subset of ids that still have a conversation document.
func (c *ConversationsStore) ExistingIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]bool, error) {
	existing := make(map[bson.ObjectID]bool, len(ids))
	// An empty $in matches nothing; skip the round trip
	if len(ids) == 0 {
		return existing, nil
	}

	// Only _id is needed, so project everything else away
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := c.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	// Iterate one document at a time instead of All(); only the id is kept
	for cursor.Next(ctx) {
		var doc struct {
			ID bson.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		existing[doc.ID] = true
	}
	// cursor.Err() reports an error that ended the iteration early
	return existing, cursor.Err()
}
