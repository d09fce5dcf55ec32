package data

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// ErrNotFound is returned by stores when the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUserExists is returned when an email or username is already registered.
	ErrUserExists = errors.New("user already exists")
)

// DefaultAvatar is used for users who never uploaded one.
const DefaultAvatar = "https://www.shutterstock.com/image-vector/default-avatar-photo-placeholder-grey-600nw-2007531536.jpg"

// User maps to users collection (identity, profile, password hash, timestamps)
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Username  string        `bson:"username"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password"` // bcrypt hash, never the plain password
	Bio       string        `bson:"bio"`
	Avatar    string        `bson:"avatar"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// Conversation maps to conversations collection. PairKey is the canonical
// participant pair and carries the unique index that keeps one conversation
// per pair of users.
type Conversation struct {
	ID            bson.ObjectID   `bson:"_id,omitempty"`
	PairKey       string          `bson:"pair_key"`
	Participants  []bson.ObjectID `bson:"participants"`
	LastMessageID *bson.ObjectID  `bson:"last_message,omitempty"`    // nil when the conversation has no messages
	LastMessageAt *time.Time      `bson:"last_message_at,omitempty"` // created_at of LastMessageID, used to order pointer updates
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

// HasParticipant reports whether id is one of the conversation's two members.
func (c *Conversation) HasParticipant(id bson.ObjectID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Message maps to messages collection (conversation, sender, content, read receipts)
type Message struct {
	ID             bson.ObjectID   `bson:"_id,omitempty"`
	ConversationID bson.ObjectID   `bson:"conversation_id"`
	SenderID       bson.ObjectID   `bson:"sender_id"`
	Content        string          `bson:"content"`
	ReadBy         []bson.ObjectID `bson:"read_by"` // the sender is added at creation
	CreatedAt      time.Time       `bson:"created_at"`
}

// IsReadBy reports whether userID is in the message's read-by set.
func (m *Message) IsReadBy(userID bson.ObjectID) bool {
	for _, r := range m.ReadBy {
		if r == userID {
			return true
		}
	}
	return false
}

// After orders messages by creation time, breaking ties on the id so that two
// messages created in the same millisecond still have a total order.
func (m *Message) After(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.After(o.CreatedAt)
	}
	// Hex strings compare like the underlying 12 bytes
	return m.ID.Hex() > o.ID.Hex()
}

// PairKey returns the order-independent key for a pair of users.
func PairKey(a, b bson.ObjectID) string {
	ha, hb := a.Hex(), b.Hex()
	// Sort the hex ids so (a, b) and (b, a) give the same key
	if hb < ha {
		ha, hb = hb, ha
	}
	return strings.Join([]string{ha, hb}, ":")
}

// Now returns the current time at the precision MongoDB stores dates with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
