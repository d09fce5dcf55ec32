// Package messaging implements direct messaging between two users: the
// conversation directory that maps user pairs to conversations, and the
// message ledger that appends, lists, read-tracks and deletes messages.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/normalize"
)

// DefaultMaxContentLength bounds message content, in runes.
const DefaultMaxContentLength = 2000

// Service orchestrates conversation and message operations.
type Service struct {
	users         UserDirectory
	conversations ConversationStore
	messages      MessageStore
	tx            TxRunner
	notifier      Notifier
	log           zerolog.Logger

	maxContent int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where events go. The default drops them.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMaxContentLength overrides DefaultMaxContentLength.
func WithMaxContentLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxContent = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new Service.
func New(
	users UserDirectory,
	conversations ConversationStore,
	messages MessageStore,
	tx TxRunner,
	log zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		users:         users,
		conversations: conversations,
		messages:      messages,
		tx:            tx,
		notifier:      NopNotifier{},
		log:           log,
		maxContent:    DefaultMaxContentLength,
		now:           data.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListConversations returns the conversations userID takes part in, most
// recently active first, with participants and last message senders resolved.
// A limit of 0 returns all of them.
func (s *Service) ListConversations(ctx context.Context, userID bson.ObjectID, limit int64) ([]ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(convs) == 0 {
		return []ConversationView{}, nil
	}

	convIDs := lo.Map(convs, func(c *data.Conversation, _ int) bson.ObjectID { return c.ID })
	lastIDs := lo.FilterMap(convs, func(c *data.Conversation, _ int) (bson.ObjectID, bool) {
		if c.LastMessageID == nil {
			return bson.ObjectID{}, false
		}
		return *c.LastMessageID, true
	})

	lastMessages, err := s.messages.GetByIDs(ctx, lastIDs)
	if err != nil {
		return nil, fmt.Errorf("load last messages: %w", err)
	}
	byID := lo.KeyBy(lastMessages, func(m *data.Message) bson.ObjectID { return m.ID })

	unread, err := s.messages.CountUnread(ctx, userID, convIDs)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	userIDs := lo.FlatMap(convs, func(c *data.Conversation, _ int) []bson.ObjectID { return c.Participants })
	userIDs = append(userIDs, lo.Map(lastMessages, func(m *data.Message, _ int) bson.ObjectID { return m.SenderID })...)
	who, err := s.resolve(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		v := ConversationView{
			ID:           c.ID,
			Participants: lo.Map(c.Participants, func(id bson.ObjectID, _ int) Participant { return who.participant(id) }),
			UnreadCount:  unread[c.ID],
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		}
		if c.LastMessageID != nil {
			if m, ok := byID[*c.LastMessageID]; ok {
				mv := who.message(m)
				v.LastMessage = &mv
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// ResolveOrCreateConversation returns the conversation between sender and
// recipient, creating it on first contact.
func (s *Service) ResolveOrCreateConversation(ctx context.Context, senderID, recipientID bson.ObjectID) (*data.Conversation, error) {
	if recipientID.IsZero() {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidArgument)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidArgument)
	}

	exists, err := s.users.UserExists(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("look up recipient: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: recipient %s", ErrNotFound, recipientID.Hex())
	}

	conv, created, err := s.conversations.FindOrCreate(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("find or create conversation: %w", err)
	}
	if created {
		s.log.Info().
			Str("conversation_id", conv.ID.Hex()).
			Str("sender_id", senderID.Hex()).
			Str("recipient_id", recipientID.Hex()).
			Msg("conversation created")
	}
	return conv, nil
}

// DeleteConversation removes a conversation and all of its messages. Only a
// participant may delete it.
func (s *Service) DeleteConversation(ctx context.Context, convID, requesterID bson.ObjectID) (*DeleteResult, error) {
	conv, err := s.participantConversation(ctx, convID, requesterID)
	if err != nil {
		return nil, err
	}

	res := &DeleteResult{ConversationID: conv.ID}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		// messages first: a failure after this step leaves orphans that the
		// reconciler removes, never a conversation pointing at nothing
		n, err := s.messages.DeleteByConversation(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res.MessagesDeleted = n

		if err := s.conversations.Delete(ctx, conv.ID); err != nil && !errors.Is(err, data.ErrNotFound) {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conv.ID.Hex()).Msg("cascade delete failed")
		return nil, err
	}

	s.log.Info().
		Str("conversation_id", conv.ID.Hex()).
		Int64("messages_deleted", res.MessagesDeleted).
		Msg("conversation deleted")

	s.publish(ctx, Event{
		Type:           EventConversationDeleted,
		ConversationID: conv.ID,
		ActorID:        requesterID,
		Recipients:     conv.Participants,
		At:             s.now(),
	})
	return res, nil
}

// SendMessage appends a message to an existing conversation or to the
// conversation with a recipient, creating that conversation if needed.
func (s *Service) SendMessage(ctx context.Context, senderID bson.ObjectID, in SendInput) (*MessageView, error) {
	content := normalize.Content(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > s.maxContent {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidArgument, s.maxContent)
	}
	if in.ConversationID.IsZero() && in.RecipientID.IsZero() {
		return nil, fmt.Errorf("%w: either conversation or recipient is required", ErrInvalidArgument)
	}

	var (
		conv *data.Conversation
		err  error
	)
	if !in.ConversationID.IsZero() {
		conv, err = s.participantConversation(ctx, in.ConversationID, senderID)
	} else {
		conv, err = s.ResolveOrCreateConversation(ctx, senderID, in.RecipientID)
	}
	if err != nil {
		return nil, err
	}

	msg := &data.Message{
		ID:             bson.NewObjectID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		// the sender has read their own message
		ReadBy:    []bson.ObjectID{senderID},
		CreatedAt: s.now(),
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	if err := s.conversations.AdvanceLastMessage(ctx, conv.ID, msg); err != nil {
		// the message is stored but the conversation does not point at it;
		// the next successful send in this conversation moves the pointer
		s.log.Error().Err(err).
			Str("conversation_id", conv.ID.Hex()).
			Str("message_id", msg.ID.Hex()).
			Msg("failed to advance last message")
		return nil, fmt.Errorf("advance last message: %w", err)
	}

	who, err := s.resolve(ctx, []bson.ObjectID{senderID})
	if err != nil {
		return nil, err
	}
	view := who.message(msg)

	s.publish(ctx, Event{
		Type:           EventMessageCreated,
		ConversationID: conv.ID,
		ActorID:        senderID,
		Recipients:     others(conv.Participants, senderID),
		Message:        &view,
		At:             msg.CreatedAt,
	})
	return &view, nil
}

// GetMessages returns the history of a conversation, oldest first, and marks
// every returned message as read by the requester. The returned messages
// show the read state as it was before this call.
func (s *Service) GetMessages(ctx context.Context, convID, requesterID bson.ObjectID) ([]MessageView, error) {
	conv, err := s.participantConversation(ctx, convID, requesterID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	unread := lo.FilterMap(msgs, func(m *data.Message, _ int) (bson.ObjectID, bool) {
		return m.ID, !m.IsReadBy(requesterID)
	})
	if len(unread) > 0 {
		n, err := s.messages.MarkRead(ctx, unread, requesterID)
		if err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
		if n > 0 {
			s.publish(ctx, Event{
				Type:           EventConversationRead,
				ConversationID: conv.ID,
				ActorID:        requesterID,
				Recipients:     others(conv.Participants, requesterID),
				At:             s.now(),
			})
		}
	}

	who, err := s.resolve(ctx, lo.Map(msgs, func(m *data.Message, _ int) bson.ObjectID { return m.SenderID }))
	if err != nil {
		return nil, err
	}
	return lo.Map(msgs, func(m *data.Message, _ int) MessageView { return who.message(m) }), nil
}

// DeleteMessage removes a message. Only its author may delete it. When the
// message was the conversation's last message, the pointer moves to the
// newest remaining message.
func (s *Service) DeleteMessage(ctx context.Context, msgID, requesterID bson.ObjectID) error {
	msg, err := s.messages.GetByID(ctx, msgID)
	if errors.Is(err, data.ErrNotFound) {
		return fmt.Errorf("%w: message %s", ErrNotFound, msgID.Hex())
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg.SenderID != requesterID {
		return fmt.Errorf("%w: only the author can delete a message", ErrForbidden)
	}

	if err := s.messages.Delete(ctx, msg.ID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, msgID.Hex())
		}
		return fmt.Errorf("delete message: %w", err)
	}

	conv, err := s.conversations.GetByID(ctx, msg.ConversationID)
	if errors.Is(err, data.ErrNotFound) {
		// conversation deleted concurrently; nothing to repair
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	if conv.LastMessageID != nil && *conv.LastMessageID == msg.ID {
		if err := s.repairLastMessage(ctx, conv.ID, msg.ID); err != nil {
			return err
		}
	}

	s.publish(ctx, Event{
		Type:           EventMessageDeleted,
		ConversationID: conv.ID,
		ActorID:        requesterID,
		Recipients:     conv.Participants,
		MessageID:      &msg.ID,
		At:             s.now(),
	})
	return nil
}

// repairLastMessage moves the pointer off removedID onto the newest remaining
// message. The replacement is read before the pointer is written, so it can be
// deleted in between; that delete sees the old pointer and skips its own
// repair. Checking the replacement still exists after the write and repairing
// again from it closes that gap.
func (s *Service) repairLastMessage(ctx context.Context, convID, removedID bson.ObjectID) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		latest, err := s.messages.Latest(ctx, convID)
		if err != nil {
			return fmt.Errorf("find latest message: %w", err)
		}
		if err := s.conversations.RepairLastMessage(ctx, convID, removedID, latest); err != nil {
			return err
		}
		if latest == nil {
			return nil
		}

		_, err = s.messages.GetByID(ctx, latest.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, data.ErrNotFound) {
			return fmt.Errorf("check latest message: %w", err)
		}
		s.log.Debug().
			Str("conversation_id", convID.Hex()).
			Str("message_id", latest.ID.Hex()).
			Msg("replacement last message deleted, repairing again")
		removedID = latest.ID
	}
}

// participantConversation loads a conversation and checks userID belongs to it.
func (s *Service) participantConversation(ctx context.Context, convID, userID bson.ObjectID) (*data.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, convID)
	if errors.Is(err, data.ErrNotFound) {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, convID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	return conv, nil
}

func (s *Service) resolve(ctx context.Context, ids []bson.ObjectID) (people, error) {
	users, err := s.users.GetUsersByIDs(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	return people(lo.KeyBy(users, func(u *data.User) bson.ObjectID { return u.ID })), nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if len(evt.Recipients) == 0 {
		return
	}
	if err := s.notifier.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).
			Str("event", string(evt.Type)).
			Str("conversation_id", evt.ConversationID.Hex()).
			Msg("event delivery failed")
	}
}

func others(participants []bson.ObjectID, self bson.ObjectID) []bson.ObjectID {
	return lo.Without(participants, self)
}
