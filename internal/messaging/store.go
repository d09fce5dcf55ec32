package messaging

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

// UserDirectory is the identity collaborator: it answers whether a user exists
// and resolves users to display fields. The messaging core never writes users.
type UserDirectory interface {
	UserExists(ctx context.Context, id bson.ObjectID) (bool, error)
	GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) ([]*data.User, error)
}

// ConversationStore persists conversations.
type ConversationStore interface {
	FindOrCreate(ctx context.Context, a, b bson.ObjectID) (*data.Conversation, bool, error)
	GetByID(ctx context.Context, id bson.ObjectID) (*data.Conversation, error)
	ListForUser(ctx context.Context, userID bson.ObjectID, limit int64) ([]*data.Conversation, error)
	AdvanceLastMessage(ctx context.Context, convID bson.ObjectID, msg *data.Message) error
	RepairLastMessage(ctx context.Context, convID, removedID bson.ObjectID, latest *data.Message) error
	Delete(ctx context.Context, id bson.ObjectID) error
	ExistingIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]bool, error)
}

// MessageStore persists messages.
type MessageStore interface {
	Insert(ctx context.Context, msg *data.Message) error
	GetByID(ctx context.Context, id bson.ObjectID) (*data.Message, error)
	GetByIDs(ctx context.Context, ids []bson.ObjectID) ([]*data.Message, error)
	ListByConversation(ctx context.Context, convID bson.ObjectID) ([]*data.Message, error)
	MarkRead(ctx context.Context, ids []bson.ObjectID, userID bson.ObjectID) (int64, error)
	Latest(ctx context.Context, convID bson.ObjectID) (*data.Message, error)
	Delete(ctx context.Context, id bson.ObjectID) error
	DeleteByConversation(ctx context.Context, convID bson.ObjectID) (int64, error)
	ConversationIDs(ctx context.Context) ([]bson.ObjectID, error)
	CountUnread(ctx context.Context, userID bson.ObjectID, convIDs []bson.ObjectID) (map[bson.ObjectID]int64, error)
}

// TxRunner runs fn atomically when the backing store supports it.
type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
