package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/observability/logger"
	"github.com/smallbiznis/warebill/internal/ratelimit"
	"go.uber.org/zap"
)

// PublicInvoiceRateLimit budgets share-link lookups per client ip so tokens cannot be brute forced.
func (s *Server) PublicInvoiceRateLimit() gin.HandlerFunc {
	return s.rateLimit(s.limiters.PublicInvoice, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// FeedRateLimit budgets feed ingestion per parent account.
func (s *Server) FeedRateLimit() gin.HandlerFunc {
	return s.rateLimit(s.limiters.Feed, func(c *gin.Context) string {
		p := principalFrom(c)
		if p.ParentAccountID == 0 {
			return p.Subject
		}
		return p.ParentAccountID.String()
	})
}

func (s *Server) rateLimit(l *ratelimit.Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		d, err := l.Allow(ctx, key(c))
		if err != nil {
			// limiter faults never block traffic
			logger.FromContext(ctx).Warn("rate limit check failed", zap.String("policy", l.Name()), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if d.Allowed {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		logger.FromContext(ctx).Warn("rate limit exceeded",
			zap.String("policy", l.Name()),
			zap.String("endpoint", endpoint),
		)
		if s.metrics != nil {
			s.metrics.RecordRateLimitDenied(ctx, endpoint)
		}
		c.Header("Retry-After", retryAfterSeconds(d.RetryAfter))
		AbortWithError(c, apperror.ErrRateLimited)
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
