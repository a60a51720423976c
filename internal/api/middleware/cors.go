package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns the CORS configuration for the given origin
// patterns.
func DefaultCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			"X-AuthKey",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// MatchOrigin reports whether origin matches one of patterns. A trailing
// "*" matches by prefix; a lone "*" or an empty list matches everything.
func MatchOrigin(patterns []string, origin string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// OriginChecker adapts MatchOrigin for a websocket upgrader. Requests
// without an Origin header are accepted.
func OriginChecker(patterns []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || MatchOrigin(patterns, origin)
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	patterns := cfg.AllowOrigins
	return cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return MatchOrigin(patterns, origin) },
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
