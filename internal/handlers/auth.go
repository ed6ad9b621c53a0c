package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

const ctxUserIDKey = "user_id"

// AuthRequired validates the bearer token and stores the subject claim as
// the requesting user id. Token issuance lives outside this service; only
// HS256 tokens signed with the shared secret are accepted.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			RespondWithError(c, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Missing bearer token", nil)
			c.Abort()
			return
		}
		userID, err := h.verifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			RespondWithError(c, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid token", nil)
			c.Abort()
			return
		}
		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// verifyToken checks signature and expiry and returns the subject claim.
func (h *Handler) verifyToken(raw string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// CurrentUserID returns the authenticated user id set by AuthRequired.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ctxUserIDKey)
}
