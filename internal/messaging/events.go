//go:generate go run go.uber.org/mock/mockgen -source=events.go -destination=mocks/mock_notifier.go -package=mocks
package messaging

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// EventType names a change in the messaging state.
type EventType string

const (
	EventMessageCreated      EventType = "message.created"
	EventMessageDeleted      EventType = "message.deleted"
	EventConversationRead    EventType = "conversation.read"
	EventConversationDeleted EventType = "conversation.deleted"
)

// Event describes a persisted change and who should hear about it.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID bson.ObjectID   `json:"conversation_id"`
	ActorID        bson.ObjectID   `json:"actor_id"`
	Recipients     []bson.ObjectID `json:"recipients"`
	// Message is set for message.created.
	Message *MessageView `json:"message,omitempty"`
	// MessageID is set for message.deleted.
	MessageID *bson.ObjectID `json:"message_id,omitempty"`
	At        time.Time      `json:"at"`
}

// Notifier receives events after state changes are persisted. Delivery is
// best effort; the service logs a failed Publish and carries on.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(context.Context, Event) error { return nil }
