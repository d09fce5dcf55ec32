package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/chatv1"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/middleware"
)

// Health answers whether the process and its store are up.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

// Register creates an account. POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	sess, err := h.accounts.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, chatv1.FromSession(sess))
}

// Login exchanges credentials for a token. POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var in auth.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	sess, err := h.accounts.Login(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chatv1.FromSession(sess))
}

type publicProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetPublicProfile returns a user's public fields. GET /api/users/:userId
func (h *Handler) GetPublicProfile(c *gin.Context) {
	id, ok := h.objectID(c, "userId")
	if !ok {
		return
	}

	u, err := h.profiles.GetUserByID(c.Request.Context(), id)
	if errors.Is(err, data.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, publicProfile{
		ID:        u.ID.Hex(),
		Username:  u.Username,
		Bio:       u.Bio,
		Avatar:    avatarOrDefault(u.Avatar),
		CreatedAt: u.CreatedAt,
	})
}

type ownProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	Token     string    `json:"token,omitempty"`
}

func toOwnProfile(u *data.User) ownProfile {
	return ownProfile{
		ID:        u.ID.Hex(),
		Username:  u.Username,
		Email:     u.Email,
		Bio:       u.Bio,
		Avatar:    avatarOrDefault(u.Avatar),
		CreatedAt: u.CreatedAt,
	}
}

// GetProfile returns the caller's own account. GET /api/users/profile
func (h *Handler) GetProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	u, err := h.accounts.Profile(c.Request.Context(), userID)
	if errors.Is(err, data.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOwnProfile(u))
}

// UpdateProfile changes the caller's profile and returns it with a new
// token. PUT /api/users/profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var in auth.ProfileUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	sess, err := h.accounts.UpdateProfile(c.Request.Context(), userID, in)
	if errors.Is(err, data.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	out := toOwnProfile(sess.User)
	out.Token = sess.Token
	c.JSON(http.StatusOK, out)
}

// DeleteAccount removes the caller's account. Their conversations stay and
// show them as an unknown participant. DELETE /api/users/profile
func (h *Handler) DeleteAccount(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	err := h.accounts.DeleteAccount(c.Request.Context(), userID)
	if errors.Is(err, data.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info().Str("user_id", userID.Hex()).Msg("account deleted")
	c.JSON(http.StatusOK, gin.H{"message": "User account deleted successfully"})
}

func avatarOrDefault(avatar string) string {
	if avatar == "" {
		return data.DefaultAvatar
	}
	return avatar
}

type listQuery struct {
	Limit int64 `form:"limit" binding:"gte=0"`
}

// ListConversations returns the caller's conversations, most recent first.
// GET /api/messages/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid limit"})
		return
	}

	views, err := h.svc.ListConversations(c.Request.Context(), userID, q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(views, func(v messaging.ConversationView, _ int) *chatv1.Conversation {
		return chatv1.FromConversation(v)
	}))
}

// GetMessages returns a conversation's messages and marks them read.
// GET /api/messages/conversations/:conversationId
func (h *Handler) GetMessages(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	convID, ok := h.objectID(c, "conversationId")
	if !ok {
		return
	}

	views, err := h.svc.GetMessages(c.Request.Context(), convID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(views, func(v messaging.MessageView, _ int) *chatv1.Message {
		return chatv1.FromMessage(v)
	}))
}

// DeleteConversation removes a conversation with all of its messages.
// DELETE /api/messages/conversations/:conversationId
func (h *Handler) DeleteConversation(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	convID, ok := h.objectID(c, "conversationId")
	if !ok {
		return
	}

	res, err := h.svc.DeleteConversation(c.Request.Context(), convID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chatv1.DeleteConversationResponse{
		ConversationID:  res.ConversationID.Hex(),
		MessagesDeleted: res.MessagesDeleted,
	})
}

type sendBody struct {
	ConversationID string `json:"conversationId"`
	RecipientID    string `json:"recipientId"`
	Content        string `json:"content"`
}

// SendMessage stores a message, opening the conversation on first contact.
// POST /api/messages
func (h *Handler) SendMessage(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var body sendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	in := messaging.SendInput{Content: body.Content}
	var err error
	if in.ConversationID, err = optionalID(body.ConversationID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid conversationId"})
		return
	}
	if in.RecipientID, err = optionalID(body.RecipientID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid recipientId"})
		return
	}

	view, err := h.svc.SendMessage(c.Request.Context(), userID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, chatv1.FromMessage(*view))
}

// DeleteMessage removes one of the caller's messages.
// DELETE /api/messages/:messageId
func (h *Handler) DeleteMessage(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	msgID, ok := h.objectID(c, "messageId")
	if !ok {
		return
	}

	if err := h.svc.DeleteMessage(c.Request.Context(), msgID, userID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chatv1.DeleteMessageResponse{MessageID: msgID.Hex()})
}

func optionalID(s string) (bson.ObjectID, error) {
	if s == "" {
		return bson.ObjectID{}, nil
	}
	return bson.ObjectIDFromHex(s)
}
