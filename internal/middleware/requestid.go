package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries the request id on HTTP requests and responses; the
// lower-case form is the gRPC metadata key.
const RequestIDHeader = "X-Request-ID"

const requestIDMetadata = "x-request-id"

type requestIDCtxKey struct{}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}

// RequestID returns a gin middleware that reuses the caller's X-Request-ID or
// generates one, echoes it on the response and stores it in the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog returns a gin middleware that logs every request once it completes.
func AccessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		evt := log.Info()
		switch {
		case code >= 500:
			evt = log.Error()
		case code >= 400:
			evt = log.Warn()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", code).
			Dur("latency", time.Since(start)).
			Str("request_id", RequestIDFromContext(c.Request.Context())).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDMetadata); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

// RequestIDUnaryInterceptor stores a request id in the context of every unary
// call, logs the call once it completes and returns the id as a header.
func RequestIDUnaryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingRequestID(ctx)
		ctx = WithRequestID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadata, id))

		start := time.Now()
		resp, err := handler(ctx, req)

		evt := log.Info()
		if err != nil {
			evt = log.Warn().Err(err)
		}
		evt.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("latency", time.Since(start)).
			Str("request_id", id).
			Msg("grpc request")
		return resp, err
	}
}

// RequestIDStreamInterceptor is the streaming counterpart of
// RequestIDUnaryInterceptor. Streams are logged when they open and close.
func RequestIDStreamInterceptor(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		id := incomingRequestID(ss.Context())
		wrapped := &contextStream{ServerStream: ss, ctx: WithRequestID(ss.Context(), id)}
		_ = ss.SetHeader(metadata.Pairs(requestIDMetadata, id))

		start := time.Now()
		log.Debug().Str("method", info.FullMethod).Str("request_id", id).Msg("grpc stream opened")
		err := handler(srv, wrapped)
		log.Info().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Str("request_id", id).
			Msg("grpc stream closed")
		return err
	}
}

// contextStream overrides the context of a grpc.ServerStream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }

// WrapServerStream returns ss with its context replaced by ctx.
func WrapServerStream(ctx context.Context, ss grpc.ServerStream) grpc.ServerStream {
	return &contextStream{ServerStream: ss, ctx: ctx}
}
