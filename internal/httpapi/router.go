// Package httpapi is the REST surface of the messaging service.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/middleware"
)

// ProfileStore looks up users for the public profile route.
type ProfileStore interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the REST routes.
type Handler struct {
	accounts *auth.Accounts
	svc      *messaging.Service
	profiles ProfileStore
	store    Pinger
	log      zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(accounts *auth.Accounts, svc *messaging.Service, profiles ProfileStore, store Pinger, log zerolog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		svc:      svc,
		profiles: profiles,
		store:    store,
		log:      log.With().Str("component", "http").Logger(),
	}
}

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	CORSOrigins []string
	Tokens      *auth.JWTManager
	// Limiter throttles the auth routes per client IP; nil disables it.
	Limiter *middleware.LimiterStore
}

// NewRouter wires routes and middleware.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(h.log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	api.GET("/health", h.Health)

	authRoutes := api.Group("/auth")
	if cfg.Limiter != nil {
		authRoutes.Use(middleware.RateLimit(cfg.Limiter))
	}
	authRoutes.POST("/register", h.Register)
	authRoutes.POST("/login", h.Login)

	users := api.Group("/users")
	{
		profile := users.Group("/profile", middleware.JWTAuth(cfg.Tokens))
		profile.GET("", h.GetProfile)
		profile.PUT("", h.UpdateProfile)
		profile.DELETE("", h.DeleteAccount)

		users.GET("/:userId", h.GetPublicProfile)
	}

	messages := api.Group("/messages")
	messages.Use(middleware.JWTAuth(cfg.Tokens))
	{
		messages.GET("/conversations", h.ListConversations)
		messages.GET("/conversations/:conversationId", h.GetMessages)
		messages.DELETE("/conversations/:conversationId", h.DeleteConversation)
		messages.POST("", h.SendMessage)
		messages.DELETE("/:messageId", h.DeleteMessage)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})
	return r
}
