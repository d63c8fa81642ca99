package handlers

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	userIDKey    = "user_id"
	roleKey      = "role"
	requestIDKey = "request_id"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
	requestsByCode = expvar.NewMap("requests_by_status")
)

// RoleResolver maps an authenticated user id to its role.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string) (string, error)
}

// RequestID tags every request with an id, reusing the caller's if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one structured line per request: Warn for 4xx, Error
// for 5xx.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		requestsTotal.Add(1)
		requestsByCode.Add(http.StatusText(status), 1)
		if status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}

		level := slog.LevelInfo
		if status >= 400 && status < 500 {
			level = slog.LevelWarn
		} else if status >= 500 {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(requestIDKey)),
		}
		if userID := c.GetString(userIDKey); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.Last().Error()))
		}
		logger.LogAttrs(c.Request.Context(), level, "HTTP request processed", attrs...)
	}
}

// RequireAuth rejects requests without an authenticated user id.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			writeError(c, http.StatusUnauthorized, "unauthorized", "missing user identity")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireRole resolves the caller's role and admits only the listed roles.
// It must run after RequireAuth.
func RequireRole(resolver RoleResolver, allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := resolveRole(c, resolver)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, r := range allowed {
			if r == role {
				c.Next()
				return
			}
		}
		writeError(c, http.StatusForbidden, "insufficient_permissions", "role "+role+" may not perform this action")
	}
}

func resolveRole(c *gin.Context, resolver RoleResolver) (string, error) {
	if role := c.GetString(roleKey); role != "" {
		return role, nil
	}
	role, err := resolver.ResolveRole(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		return "", err
	}
	c.Set(roleKey, role)
	return role, nil
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
