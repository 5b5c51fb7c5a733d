package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origins is a parsed CORS_ALLOWED_ORIGINS value. The zero value allows every origin.
type Origins struct {
	set map[string]struct{}
}

// ParseOrigins parses "*" or a comma-separated origin list. Empty input allows all.
func ParseOrigins(s string) Origins {
	set := make(map[string]struct{})
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return Origins{}
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	if len(set) == 0 {
		return Origins{}
	}
	return Origins{set: set}
}

// Any reports whether every origin is allowed.
func (o Origins) Any() bool { return o.set == nil }

// Allows reports whether origin may talk to the API.
func (o Origins) Allows(origin string) bool {
	if o.Any() {
		return true
	}
	_, ok := o.set[origin]
	return ok
}

// CORS answers preflight requests and tags responses for the configured origins.
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := ParseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origins.Any():
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && origins.Allows(origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		default:
			origin = ""
		}
		if origins.Any() || origin != "" {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
