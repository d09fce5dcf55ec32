package chatv1

import (
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GetEmail returns the email; the rate limiter keys on it.
func (r *RegisterRequest) GetEmail() string {
	if r == nil {
		return ""
	}
	return r.Email
}

// LoginRequest exchanges credentials for a token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GetEmail returns the email; the rate limiter keys on it.
func (r *LoginRequest) GetEmail() string {
	if r == nil {
		return ""
	}
	return r.Email
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Participant is a displayable user.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Message is a message with its sender resolved.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         *Participant `json:"sender"`
	Content        string       `json:"content"`
	ReadBy         []string     `json:"read_by"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Conversation is a conversation summary.
type Conversation struct {
	ID           string         `json:"id"`
	Participants []*Participant `json:"participants"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCount  int64          `json:"unread_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ListConversationsRequest lists the caller's conversations. A zero limit
// returns all of them.
type ListConversationsRequest struct {
	Limit int64 `json:"limit,omitempty"`
}

// ListConversationsResponse holds conversations, most recently active first.
type ListConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
}

// GetMessagesRequest fetches a conversation's history and marks it read.
type GetMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
}

// GetMessagesResponse holds messages, oldest first.
type GetMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

// SendMessageRequest sends to an existing conversation or to a recipient.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Content        string `json:"content"`
}

// SendMessageResponse holds the stored message.
type SendMessageResponse struct {
	Message *Message `json:"message"`
}

// DeleteConversationRequest deletes a conversation and its messages.
type DeleteConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// DeleteConversationResponse confirms a conversation delete.
type DeleteConversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	MessagesDeleted int64  `json:"messages_deleted"`
}

// DeleteMessageRequest deletes one of the caller's messages.
type DeleteMessageRequest struct {
	MessageID string `json:"message_id"`
}

// DeleteMessageResponse confirms a message delete.
type DeleteMessageResponse struct {
	MessageID string `json:"message_id"`
}

// SubscribeRequest opens the caller's event stream.
type SubscribeRequest struct{}

// MessageEvent is pushed on Subscribe streams.
type MessageEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	ActorID        string    `json:"actor_id"`
	Message        *Message  `json:"message,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	At             time.Time `json:"at"`
}

func hexes(ids []bson.ObjectID) []string {
	return lo.Map(ids, func(id bson.ObjectID, _ int) string { return id.Hex() })
}

// FromParticipant converts a participant view.
func FromParticipant(p messaging.Participant) *Participant {
	return &Participant{ID: p.ID.Hex(), Username: p.Username, Avatar: p.Avatar}
}

// FromMessage converts a message view.
func FromMessage(m messaging.MessageView) *Message {
	return &Message{
		ID:             m.ID.Hex(),
		ConversationID: m.ConversationID.Hex(),
		Sender:         FromParticipant(m.Sender),
		Content:        m.Content,
		ReadBy:         hexes(m.ReadBy),
		CreatedAt:      m.CreatedAt,
	}
}

// FromConversation converts a conversation view.
func FromConversation(c messaging.ConversationView) *Conversation {
	out := &Conversation{
		ID:           c.ID.Hex(),
		Participants: lo.Map(c.Participants, func(p messaging.Participant, _ int) *Participant { return FromParticipant(p) }),
		UnreadCount:  c.UnreadCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastMessage != nil {
		out.LastMessage = FromMessage(*c.LastMessage)
	}
	return out
}

// FromEvent converts a messaging event.
func FromEvent(e messaging.Event) *MessageEvent {
	out := &MessageEvent{
		Type:           string(e.Type),
		ConversationID: e.ConversationID.Hex(),
		ActorID:        e.ActorID.Hex(),
		At:             e.At,
	}
	if e.Message != nil {
		out.Message = FromMessage(*e.Message)
	}
	if e.MessageID != nil {
		out.MessageID = e.MessageID.Hex()
	}
	return out
}

// FromSession converts an auth session.
func FromSession(s *auth.Session) *AuthResponse {
	return &AuthResponse{
		Token:     s.Token,
		UserID:    s.User.ID.Hex(),
		Username:  s.User.Username,
		Email:     s.User.Email,
		ExpiresAt: s.ExpiresAt,
	}
}
