package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
)

const (
	userIDKey   = "userId"
	usernameKey = "username"
)

// JWTAuth returns a gin middleware that requires "Authorization: Bearer <jwt>"
// and stores the caller's user id in the gin context.
func JWTAuth(tokens *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip CORS preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, no token"})
			return
		}

		claims, err := tokens.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, token failed"})
			return
		}

		// VerifyToken already checked the id parses
		id, _ := bson.ObjectIDFromHex(claims.UserID)
		c.Set(userIDKey, id)
		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}

// UserID returns the authenticated user's id set by JWTAuth.
func UserID(c *gin.Context) (bson.ObjectID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return bson.ObjectID{}, false
	}
	id, ok := v.(bson.ObjectID)
	return id, ok
}
