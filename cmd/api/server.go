package main

import (
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/chatv1"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

// Server implements the chat service on top of accounts and the messaging core.
type Server struct {
	chatv1.UnimplementedChatServiceServer

	accounts *auth.Accounts
	svc      *messaging.Service
	hub      *ConnectionHub
	log      zerolog.Logger

	// done is closed on shutdown so Subscribe streams return and
	// GracefulStop does not wait on them forever.
	done     chan struct{}
	stopOnce sync.Once
}

// newServer returns a ready-to-use Server.
func newServer(accounts *auth.Accounts, svc *messaging.Service, hub *ConnectionHub, log zerolog.Logger) *Server {
	return &Server{
		accounts: accounts,
		svc:      svc,
		hub:      hub,
		log:      log.With().Str("component", "grpc").Logger(),
		done:     make(chan struct{}),
	}
}

// stop ends every open Subscribe stream.
func (s *Server) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// registerService registers the ChatService on the given gRPC server.
func registerService(s grpc.ServiceRegistrar, srv *Server) {
	chatv1.RegisterChatServiceServer(s, srv)
}
