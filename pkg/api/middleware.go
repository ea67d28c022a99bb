package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/bfsched/kernel/pkg/security"
)

// loggingMiddleware routes gin's request log through the scheduler's own
// slog.Logger instead of gin's default writer.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.logger.Info("http request",
			"method", param.Method,
			"path", param.Path,
			"status", param.StatusCode,
			"latency", param.Latency,
			"ip", param.ClientIP,
		)
		return ""
	})
}

// corsMiddleware configures cross-origin access per config.CorsConfig.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	if !s.config.API.Cors.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.config.API.Cors.AllowedOrigins) == 1 && s.config.API.Cors.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.config.API.Cors.AllowedOrigins
	}
	return cors.New(corsCfg)
}

// securityMiddleware attaches the standard defensive response headers.
func (s *Server) securityMiddleware() gin.HandlerFunc {
	headers := security.GetSecurityHeaders()
	return func(c *gin.Context) {
		for header, value := range headers {
			c.Header(header, value)
		}
		c.Next()
	}
}

// rateLimitMiddleware bounds request rate per client IP using a token
// bucket per IP, per config.RateLimitConfig.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(
				rate.Limit(s.config.API.RateLimit.RequestsPerSecond),
				s.config.API.RateLimit.Burst,
			)
			limiters[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
