// Package middleware carries the cross-cutting gin middleware: panic
// recovery, request ids, and bearer-token auth.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/auth"
	"github.com/suPer8Hu/personallm/internal/common"
)

// UserIDKey is the gin context key holding the authenticated caller id.
const UserIDKey = "user_id"

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

const requestIDHeader = "X-Request-ID"

// Recovery converts panics into a 500 envelope and logs the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestID assigns each request a uuid, honoring one supplied by the
// client, and echoes it in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AuthRequired validates the bearer token and stores its subject as the
// caller id.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		sub, err := auth.ParseJWT(strings.TrimPrefix(h, "Bearer "), secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}
		c.Set(UserIDKey, sub)
		c.Next()
	}
}

// LocalIdentity stamps every request with the fixed local user id. Used by
// the embedded backend, which runs without authentication.
func LocalIdentity(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(UserIDKey, userID)
		c.Next()
	}
}
