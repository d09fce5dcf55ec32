package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/auth"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

// fail writes the status and message for err. Errors that are not part of
// the domain taxonomy are logged and hidden behind a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	code, msg := http.StatusInternalServerError, "Server error"
	switch {
	case errors.Is(err, messaging.ErrInvalidArgument), errors.Is(err, auth.ErrInvalidInput):
		code, msg = http.StatusBadRequest, message(err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		code, msg = http.StatusBadRequest, "Invalid credentials"
	case errors.Is(err, messaging.ErrNotFound), errors.Is(err, data.ErrNotFound):
		code, msg = http.StatusNotFound, message(err)
	case errors.Is(err, messaging.ErrForbidden):
		code, msg = http.StatusForbidden, message(err)
	case errors.Is(err, data.ErrUserExists):
		code, msg = http.StatusConflict, "User with that email or username already exists"
	default:
		h.log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(code, gin.H{"message": msg})
}

// message capitalizes the error text for display.
func message(err error) string {
	s := err.Error()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// objectID parses a path parameter, answering 400 when it is malformed.
func (h *Handler) objectID(c *gin.Context, param string) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid " + param})
		return bson.ObjectID{}, false
	}
	return id, true
}
