package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Limiter is a token-bucket limiter keyed by visitor session (falling back
// to IP). A chat turn costs an LLM round trip while a health probe costs
// nothing, so routes carry token costs instead of counting requests
// uniformly, and probe endpoints bypass the limiter entirely.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64
	burst    float64
	costs    map[string]int
	exempt   []string
	logger   *zap.Logger
	now      func() time.Time
	done     chan struct{}
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

type Config struct {
	TokensPerMinute int
	Burst           int
	Costs           map[string]int
	ExemptPaths     []string
	Logger          *zap.Logger
}

func New(cfg Config) *Limiter {
	if cfg.TokensPerMinute == 0 {
		cfg.TokensPerMinute = 60
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.TokensPerMinute
	}
	if cfg.Costs == nil {
		cfg.Costs = map[string]int{
			"/api/v1/chat":     5,
			"/api/v1/admin/kb": 3,
		}
	}
	if cfg.ExemptPaths == nil {
		cfg.ExemptPaths = []string{"/api/v1/health", "/api/v1/ready", "/metrics"}
	}

	l := &Limiter{
		visitors: make(map[string]*visitor),
		rate:     float64(cfg.TokensPerMinute) / 60.0,
		burst:    float64(cfg.Burst),
		costs:    cfg.Costs,
		exempt:   cfg.ExemptPaths,
		logger:   cfg.Logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	go l.evictLoop()

	return l
}

func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, p := range l.exempt {
			if strings.HasPrefix(path, p) {
				return c.Next()
			}
		}

		key := c.Get("X-Session-ID")
		if key == "" {
			key = c.IP()
		}

		if !l.take(key, l.cost(path)) {
			l.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", path),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (l *Limiter) cost(path string) int {
	for prefix, cost := range l.costs {
		if strings.HasPrefix(path, prefix) {
			return cost
		}
	}
	return 1
}

func (l *Limiter) take(key string, cost int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{tokens: l.burst, lastSeen: now}
		l.visitors[key] = v
	}

	v.tokens += now.Sub(v.lastSeen).Seconds() * l.rate
	if v.tokens > l.burst {
		v.tokens = l.burst
	}
	v.lastSeen = now

	if v.tokens < float64(cost) {
		return false
	}

	v.tokens -= float64(cost)
	return true
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-10 * time.Minute)
			for key, v := range l.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) Stop() {
	close(l.done)
}
