package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-backend/internal/apperr"
	"pos-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ctxUserID = "userID"

// authMiddleware resolves the session token to a user id and stores it
// on the request context.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")

		userID, err := h.authService.Resolve(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// requireRole gates a route to users holding one of the given roles
func (h *Handler) requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.store.GetUserByID(c.Request.Context(), actorID(c))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		respondError(c, apperr.Forbidden("you don't have access"))
		c.Abort()
	}
}

// rateLimitMiddleware applies a fixed per-client request budget per
// minute. Redis failures fail open so the limiter never takes the API
// down with it.
func (h *Handler) rateLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := h.redis.Allow(c.Request.Context(), c.ClientIP(), limit, time.Minute)
		if err != nil {
			util.GetLogger().Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			util.RateLimitedRequestsTotal.Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// actorID returns the authenticated user id set by authMiddleware
func actorID(c *gin.Context) int64 {
	id, _ := c.Get(ctxUserID)
	userID, _ := id.(int64)
	return userID
}

// respondError maps the closed error kind set to HTTP statuses.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	var status int
	switch kind {
	case apperr.KindBadRequest:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict, apperr.KindInsufficientStock:
		status = http.StatusConflict
	default:
		util.GetLogger().Error("Internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
			"code":  kind.String(),
		})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  kind.String(),
	})
}
