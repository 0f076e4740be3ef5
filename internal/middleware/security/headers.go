package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Config controls the embedding policy. The concierge widget runs inside
// agency site pages, so frame-ancestors lists the embedding origins rather
// than denying framing outright; each origin is also granted connect-src for
// the chat API and its websocket counterpart.
type Config struct {
	EmbeddingOrigins []string
	Development      bool
}

func Headers(cfg Config) fiber.Handler {
	csp := buildPolicy(cfg.EmbeddingOrigins)

	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", csp)

		if len(cfg.EmbeddingOrigins) == 0 {
			c.Set("X-Frame-Options", "DENY")
		}

		if !cfg.Development {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

func buildPolicy(origins []string) string {
	frameAncestors := "'none'"
	if len(origins) > 0 {
		frameAncestors = strings.Join(origins, " ")
	}

	connectSrc := "'self'"
	for _, origin := range origins {
		connectSrc += " " + origin + " " + websocketOrigin(origin)
	}

	directives := []string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"connect-src " + connectSrc,
		"frame-ancestors " + frameAncestors,
		"base-uri 'self'",
		"form-action 'self'",
	}

	return strings.Join(directives, "; ")
}

func websocketOrigin(origin string) string {
	switch {
	case strings.HasPrefix(origin, "https://"):
		return "wss://" + strings.TrimPrefix(origin, "https://")
	case strings.HasPrefix(origin, "http://"):
		return "ws://" + strings.TrimPrefix(origin, "http://")
	}
	return origin
}
