package main

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/chatv1"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/middleware"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// methods that don't require authentication
var publicMethods = map[string]bool{
	chatv1.ChatService_Register_FullMethodName: true,
	chatv1.ChatService_Login_FullMethodName:    true,
	healthpb.Health_Check_FullMethodName:       true,
	healthpb.Health_Watch_FullMethodName:       true,
}

// getClaimsFromContext extracts auth claims from the context, if present.
func getClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	return c, ok
}

// callerID returns the authenticated user's id.
func callerID(ctx context.Context) (bson.ObjectID, error) {
	claims, ok := getClaimsFromContext(ctx)
	if !ok {
		return bson.ObjectID{}, status.Error(codes.Unauthenticated, "missing auth claims")
	}
	id, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return bson.ObjectID{}, status.Error(codes.Unauthenticated, "invalid user id claim")
	}
	return id, nil
}

// authenticate verifies the bearer token in ctx's metadata and attaches its claims.
func authenticate(ctx context.Context, j *auth.JWTManager) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
	}
	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(authHeaders[0]), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token")
	}

	claims, err := j.VerifyToken(strings.TrimSpace(token))
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "unauthenticated: %v", err)
	}
	return context.WithValue(ctx, authContextKey{}, claims), nil
}

// authUnaryInterceptor returns a UnaryServerInterceptor that enforces JWT authentication
// for all methods except the public ones (Register, Login, health).
func authUnaryInterceptor(j *auth.JWTManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		ctx, err := authenticate(ctx, j)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authStreamInterceptor is the stream equivalent of authUnaryInterceptor.
func authStreamInterceptor(j *auth.JWTManager) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if publicMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		ctx, err := authenticate(ss.Context(), j)
		if err != nil {
			return err
		}
		return handler(srv, middleware.WrapServerStream(ctx, ss))
	}
}
