package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clinicflow/intake/internal/config"
	"github.com/clinicflow/intake/internal/domain"
	"github.com/clinicflow/intake/pkg/auth"
	"github.com/clinicflow/intake/pkg/metrics"
)

const (
	claimsContextKey = "auth_claims"
	requestIDHeader  = "X-Request-ID"
)

// RequestID assigns each request an identifier, reusing the client's when
// present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}

// Metrics records the HTTP request counters and latency histogram. The route
// template is used as the path label to keep cardinality bounded.
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.InFlightGauge.Inc()

		c.Next()

		m.InFlightGauge.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		statusLabel := statusClass(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, statusLabel).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path, statusLabel).Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Auth validates the bearer token and stores the caller's claims.
func Auth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(c, http.StatusUnauthorized, "missing or malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			c.Abort()
			return
		}
		if !allowed[claims.Role] {
			respondError(c, http.StatusForbidden, "access denied")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit applies a per-instance global limit.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AuthRateLimit applies the stricter limit for credential endpoints.
func AuthRateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.AuthRequestsPerMinute)/60.0), cfg.AuthRequestsPerMinute)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORS applies the configured cross-origin policy.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	allowAll := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || origins[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Max-Age", cfg.MaxAge.String())
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
