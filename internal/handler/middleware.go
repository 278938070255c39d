package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"hr-portal/internal/auth"
	"hr-portal/internal/service"
)

// Context keys set by Auth.
const (
	ctxUserID = "user_id"
	ctxClaims = "claims"
)

// Auth validates the bearer token and stores the caller's user ID in the context.
func Auth(tokens *auth.TokenManager, revoker *auth.Revoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			fail(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected access token")
			fail(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if revoker.Enabled() {
			revoked, err := revoker.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Error().Err(err).Msg("Failed to check token revocation")
				fail(c, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}
			if revoked {
				fail(c, http.StatusUnauthorized, "token has been revoked")
				return
			}
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// AdminOnly rejects callers without admin privileges. It must run after Auth.
func AdminOnly(accounts *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		if _, err := accounts.RequireAdmin(c.Request.Context(), userID); err != nil {
			log.Warn().
				Int64("user_id", userID).
				Str("path", c.FullPath()).
				Msg("Non-admin attempted admin request")
			writeError(c, err)
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		if id, ok := c.Get(ctxUserID); ok {
			event = event.Int64("user_id", id.(int64))
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// Recovery turns a panic in a handler into a 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Msg("Recovered from panic in handler")
				fail(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}
