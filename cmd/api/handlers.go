package main

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/chatv1"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/middleware"
)

// errorDomain is the ErrorInfo domain attached to domain errors.
const errorDomain = "retrorade"

// toStatus maps service errors onto gRPC statuses. Unknown errors are logged
// and reported as Internal without their text.
func (s *Server) toStatus(ctx context.Context, method string, err error) error {
	var (
		code   codes.Code
		reason string
	)
	switch {
	case errors.Is(err, messaging.ErrInvalidArgument), errors.Is(err, auth.ErrInvalidInput):
		code, reason = codes.InvalidArgument, "INVALID_ARGUMENT"
	case errors.Is(err, messaging.ErrNotFound):
		code, reason = codes.NotFound, "NOT_FOUND"
	case errors.Is(err, messaging.ErrForbidden):
		code, reason = codes.PermissionDenied, "FORBIDDEN"
	case errors.Is(err, auth.ErrInvalidCredentials):
		code, reason = codes.Unauthenticated, "INVALID_CREDENTIALS"
	case errors.Is(err, data.ErrUserExists):
		code, reason = codes.AlreadyExists, "USER_EXISTS"
	default:
		s.log.Error().Err(err).
			Str("method", method).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Msg("request failed")
		return status.Error(codes.Internal, "internal error")
	}

	st, detailErr := status.New(code, err.Error()).WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: errorDomain,
	})
	if detailErr != nil {
		return status.Error(code, err.Error())
	}
	return st.Err()
}

// parseID parses a hex object id from a request field.
func parseID(field, hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.ObjectID{}, status.Errorf(codes.InvalidArgument, "invalid %s", field)
	}
	return id, nil
}

func optionalID(field, hex string) (bson.ObjectID, error) {
	if hex == "" {
		return bson.ObjectID{}, nil
	}
	return parseID(field, hex)
}

// Register creates an account and returns a token.
func (s *Server) Register(ctx context.Context, req *chatv1.RegisterRequest) (*chatv1.AuthResponse, error) {
	sess, err := s.accounts.Register(ctx, auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}
	return chatv1.FromSession(sess), nil
}

// Login authenticates a user and returns a token.
func (s *Server) Login(ctx context.Context, req *chatv1.LoginRequest) (*chatv1.AuthResponse, error) {
	sess, err := s.accounts.Login(ctx, auth.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}
	return chatv1.FromSession(sess), nil
}

// ListConversations returns the caller's conversations, most recently active first.
func (s *Server) ListConversations(ctx context.Context, req *chatv1.ListConversationsRequest) (*chatv1.ListConversationsResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}

	views, err := s.svc.ListConversations(ctx, userID, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, "ListConversations", err)
	}
	return &chatv1.ListConversationsResponse{
		Conversations: lo.Map(views, func(v messaging.ConversationView, _ int) *chatv1.Conversation {
			return chatv1.FromConversation(v)
		}),
	}, nil
}

// GetMessages returns a conversation's history and marks it read for the caller.
func (s *Server) GetMessages(ctx context.Context, req *chatv1.GetMessagesRequest) (*chatv1.GetMessagesResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	convID, err := parseID("conversation_id", req.ConversationID)
	if err != nil {
		return nil, err
	}

	views, err := s.svc.GetMessages(ctx, convID, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetMessages", err)
	}
	return &chatv1.GetMessagesResponse{
		Messages: lo.Map(views, func(v messaging.MessageView, _ int) *chatv1.Message {
			return chatv1.FromMessage(v)
		}),
	}, nil
}

// SendMessage stores a message in an existing conversation or opens one with the recipient.
func (s *Server) SendMessage(ctx context.Context, req *chatv1.SendMessageRequest) (*chatv1.SendMessageResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	in := messaging.SendInput{Content: req.Content}
	if in.ConversationID, err = optionalID("conversation_id", req.ConversationID); err != nil {
		return nil, err
	}
	if in.RecipientID, err = optionalID("recipient_id", req.RecipientID); err != nil {
		return nil, err
	}

	view, err := s.svc.SendMessage(ctx, userID, in)
	if err != nil {
		return nil, s.toStatus(ctx, "SendMessage", err)
	}
	return &chatv1.SendMessageResponse{Message: chatv1.FromMessage(*view)}, nil
}

// DeleteConversation removes a conversation together with its messages.
func (s *Server) DeleteConversation(ctx context.Context, req *chatv1.DeleteConversationRequest) (*chatv1.DeleteConversationResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	convID, err := parseID("conversation_id", req.ConversationID)
	if err != nil {
		return nil, err
	}

	res, err := s.svc.DeleteConversation(ctx, convID, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "DeleteConversation", err)
	}
	return &chatv1.DeleteConversationResponse{
		ConversationID:  res.ConversationID.Hex(),
		MessagesDeleted: res.MessagesDeleted,
	}, nil
}

// DeleteMessage removes one of the caller's own messages.
func (s *Server) DeleteMessage(ctx context.Context, req *chatv1.DeleteMessageRequest) (*chatv1.DeleteMessageResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	msgID, err := parseID("message_id", req.MessageID)
	if err != nil {
		return nil, err
	}

	if err := s.svc.DeleteMessage(ctx, msgID, userID); err != nil {
		return nil, s.toStatus(ctx, "DeleteMessage", err)
	}
	return &chatv1.DeleteMessageResponse{MessageID: msgID.Hex()}, nil
}

// Subscribe streams the caller's messaging events until the client goes away
// or the server shuts down.
// Headers are sent once the stream is registered, so a client that waits for
// them sees every event published afterwards. A client that falls too far
// behind is cut off with ResourceExhausted.
func (s *Server) Subscribe(_ *chatv1.SubscribeRequest, stream grpc.ServerStreamingServer[chatv1.MessageEvent]) error {
	ctx := stream.Context()
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	sub, err := s.hub.Attach(userID, stream, func() error {
		return stream.SendHeader(metadata.MD{})
	})
	if err != nil {
		return err
	}
	defer s.hub.Unregister(userID, sub.ID)

	s.log.Debug().Str("user_id", userID.Hex()).Int64("conn_id", sub.ID).Msg("subscriber connected")

	select {
	case <-ctx.Done():
	case <-s.done:
	case <-sub.Done():
		err := sub.Err()
		s.log.Info().Err(err).Str("user_id", userID.Hex()).Int64("conn_id", sub.ID).Msg("subscriber dropped")
		if errors.Is(err, errSlowConsumer) {
			return status.Error(codes.ResourceExhausted, "subscriber is not keeping up with events")
		}
		return status.Error(codes.Unavailable, "subscription closed")
	}
	s.log.Debug().Str("user_id", userID.Hex()).Int64("conn_id", sub.ID).Msg("subscriber left")
	return nil
}
