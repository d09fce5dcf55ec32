package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestRequestID_Gin(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)

	var seen string
	r := gin.New()
	r.Use(RequestID(), AccessLog(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	req.NotEmpty(seen)
	req.Equal(seen, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	in := httptest.NewRequest(http.MethodGet, "/", nil)
	in.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(w, in)
	req.Equal("abc-123", seen)
	req.Equal("abc-123", w.Header().Get(RequestIDHeader))
}

func TestRequestIDUnaryInterceptor(t *testing.T) {
	req := require.New(t)
	interceptor := RequestIDUnaryInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/chat.v1.ChatService/ListConversations"}

	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "from-client"))
	_, err := interceptor(ctx, nil, info, handler)
	req.NoError(err)
	req.Equal("from-client", seen)

	_, err = interceptor(context.Background(), nil, info, handler)
	req.NoError(err)
	req.Len(seen, 36)
}
