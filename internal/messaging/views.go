package messaging

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

// unknownUsername is shown for participants whose account no longer exists.
const unknownUsername = "unknown"

// Participant is the displayable identity of a user.
type Participant struct {
	ID       bson.ObjectID `json:"id"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar"`
}

// MessageView is a message with its sender resolved.
type MessageView struct {
	ID             bson.ObjectID   `json:"id"`
	ConversationID bson.ObjectID   `json:"conversation_id"`
	Sender         Participant     `json:"sender"`
	Content        string          `json:"content"`
	ReadBy         []bson.ObjectID `json:"read_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ConversationView is a conversation summary for listing.
type ConversationView struct {
	ID           bson.ObjectID `json:"id"`
	Participants []Participant `json:"participants"`
	LastMessage  *MessageView  `json:"last_message,omitempty"`
	UnreadCount  int64         `json:"unread_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SendInput is a request to send a message. Exactly one of ConversationID and
// RecipientID is used; ConversationID wins when both are set.
type SendInput struct {
	ConversationID bson.ObjectID
	RecipientID    bson.ObjectID
	Content        string
}

// DeleteResult reports what a conversation delete removed.
type DeleteResult struct {
	ConversationID  bson.ObjectID
	MessagesDeleted int64
}

// people resolves user ids to participants, falling back to a placeholder for
// ids with no user behind them.
type people map[bson.ObjectID]*data.User

func (p people) participant(id bson.ObjectID) Participant {
	u, ok := p[id]
	if !ok {
		return Participant{ID: id, Username: unknownUsername, Avatar: data.DefaultAvatar}
	}
	avatar := u.Avatar
	if avatar == "" {
		avatar = data.DefaultAvatar
	}
	return Participant{ID: u.ID, Username: u.Username, Avatar: avatar}
}

func (p people) message(m *data.Message) MessageView {
	readBy := make([]bson.ObjectID, len(m.ReadBy))
	copy(readBy, m.ReadBy)
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         p.participant(m.SenderID),
		Content:        m.Content,
		ReadBy:         readBy,
		CreatedAt:      m.CreatedAt,
	}
}
