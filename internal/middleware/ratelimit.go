// Package middleware holds the interceptors and gin handlers shared by the
// gRPC and HTTP servers.
package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/normalize"
)

// idleTTL is how long a key may stay unused before its limiter is dropped.
const idleTTL = 10 * time.Minute

// LimiterStore hands out one token bucket per key (client IP or account
// email) and forgets keys that have been idle for idleTTL.
type LimiterStore struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stopCh   chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore allows limitPerMinute events per key with the given burst.
// A non-positive limit falls back to one event per second. Idle keys are
// swept every sweepEvery until Stop is called.
func NewLimiterStore(limitPerMinute, burst int, sweepEvery time.Duration) *LimiterStore {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	s := &LimiterStore{
		limit:   rate.Every(time.Minute / time.Duration(limitPerMinute)),
		burst:   burst,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop(sweepEvery)
	return s
}

func (s *LimiterStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.sweep(now)
		case <-s.stopCh:
			return
		}
	}
}

// sweep drops buckets not used since now-idleTTL.
func (s *LimiterStore) sweep(now time.Time) {
	cutoff := now.Add(-idleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (s *LimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Len reports how many keys are currently tracked.
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Allow spends one token of key's bucket and reports whether there was one.
func (s *LimiterStore) Allow(key string) bool {
	now := time.Now()

	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// rpcKey picks the limiter key of a call: the normalized email for requests
// that carry one, so an account is protected across addresses, otherwise the
// peer host.
func rpcKey(ctx context.Context, req any) string {
	if r, ok := req.(interface{ GetEmail() string }); ok {
		if email := normalize.Email(r.GetEmail()); email != "" {
			return "email:" + email
		}
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return "ip:" + host
	}
	return "ip:" + addr
}

// RateLimitUnaryInterceptor limits the methods in limited and lets every
// other call through untouched.
func RateLimitUnaryInterceptor(store *LimiterStore, limited map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if limited[info.FullMethod] && !store.Allow(rpcKey(ctx, req)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// RateLimit returns a gin middleware that limits requests per client IP.
func RateLimit(store *LimiterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !store.Allow("ip:" + c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests, please try again later"})
			return
		}
		c.Next()
	}
}
