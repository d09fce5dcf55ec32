package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/chatv1"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/config"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data/memory"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/db"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/events"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/httpapi"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/middleware"
)

const shutdownTimeout = 15 * time.Second

// userStore is everything the api needs from user persistence.
type userStore interface {
	CreateUser(ctx context.Context, username, email, hashedPassword string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) ([]*data.User, error)
	UserExists(ctx context.Context, id bson.ObjectID) (bool, error)
	UpdateUser(ctx context.Context, user *data.User) error
	DeleteUser(ctx context.Context, id bson.ObjectID) error
}

// stores bundles one storage driver.
type stores struct {
	users         userStore
	conversations messaging.ConversationStore
	messages      messaging.MessageStore
	tx            messaging.TxRunner
	pinger        httpapi.Pinger
	// migrate creates indexes; nil when the driver has none.
	migrate func(ctx context.Context) error
	close   func(ctx context.Context) error
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		m := memory.New()
		return &stores{
			users:         m.Users(),
			conversations: m.Conversations(),
			messages:      m.Messages(),
			tx:            m,
			pinger:        m,
			close:         func(context.Context) error { return nil },
		}, nil
	case config.DriverMongo:
		client, err := db.New(ctx, cfg.MongoURI, cfg.MongoDatabase, db.WithTransactions(cfg.MongoTransactions))
		if err != nil {
			return nil, err
		}
		return &stores{
			users:         data.NewUsersStore(client.UsersCollection()),
			conversations: data.NewConversationsStore(client.ConversationsCollection()),
			messages:      data.NewMessagesStore(client.MessagesCollection()),
			tx:            client,
			pinger:        client,
			migrate:       client.CreateIndexes,
			close:         client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newTokens(cfg config.Config) (*auth.JWTManager, error) {
	if cfg.JWTKeys == "" {
		return auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL), nil
	}
	keys, err := cfg.JWTKeyMap()
	if err != nil {
		return nil, err
	}
	return auth.NewJWTManagerFromKeys(keys, cfg.JWTActiveKID, cfg.TokenTTL), nil
}

// grpcOptions builds the server options: TLS when configured, then the
// request id, rate limit and auth interceptors in that order.
func grpcOptions(cfg config.Config, tokens *auth.JWTManager, limiter *middleware.LimiterStore, logger zerolog.Logger) ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certs: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	limited := map[string]bool{
		chatv1.ChatService_Register_FullMethodName: true,
		chatv1.ChatService_Login_FullMethodName:    true,
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			middleware.RequestIDUnaryInterceptor(logger),
			middleware.RateLimitUnaryInterceptor(limiter, limited),
			authUnaryInterceptor(tokens),
		),
		grpc.ChainStreamInterceptor(
			middleware.RequestIDStreamInterceptor(logger),
			authStreamInterceptor(tokens),
		),
	)
	return opts, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := log.Logger

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("closing store")
		}
	}()

	// Ensure indexes exist
	if st.migrate != nil {
		if err := st.migrate(ctx); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	tokens, err := newTokens(cfg)
	if err != nil {
		return err
	}
	accounts := auth.NewAccounts(st.users, tokens)

	// Live delivery: the local hub directly, or every instance's hub via NATS.
	hub := NewConnectionHub(logger)
	var notifier messaging.Notifier = hub
	if cfg.NATSURL != "" {
		bus, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		if _, err := bus.Forward(hub); err != nil {
			return fmt.Errorf("subscribe to events: %w", err)
		}
		notifier = bus
	}

	svc := messaging.New(
		st.users, st.conversations, st.messages, st.tx,
		logger.With().Str("component", "messaging").Logger(),
		messaging.WithNotifier(notifier),
		messaging.WithMaxContentLength(cfg.MaxContentLength),
	)

	// small burst to allow a couple of quick retries
	limiter := middleware.NewLimiterStore(cfg.RateRPM, 3, time.Minute)
	defer limiter.Stop()

	opts, err := grpcOptions(cfg, tokens, limiter, logger)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer(opts...)
	srv := newServer(accounts, svc, hub, logger)
	registerService(grpcServer, srv)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(chatv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	gin.SetMode(cfg.GinMode)
	router := httpapi.NewRouter(
		httpapi.NewHandler(accounts, svc, st.users, st.pinger, logger),
		httpapi.RouterConfig{CORSOrigins: cfg.CORSOrigins, Tokens: tokens, Limiter: limiter},
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.GRPCAddr()).Bool("tls", cfg.TLSCert != "").Msg("gRPC server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			messaging.NewReconciler(st.conversations, st.messages, logger).Run(gctx, cfg.ReconcileInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		healthServer.Shutdown()
		srv.stop()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func migrate(ctx context.Context, cfg config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()

	if st.migrate == nil {
		log.Info().Str("driver", cfg.StoreDriver).Msg("nothing to migrate")
		return nil
	}
	if err := st.migrate(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	log.Info().Msg("indexes created")
	return nil
}

func reconcile(ctx context.Context, cfg config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()

	n, err := messaging.NewReconciler(st.conversations, st.messages, log.Logger).Sweep(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("messages_deleted", n).Msg("reconcile finished")
	return nil
}
