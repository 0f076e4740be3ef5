package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func newTestLimiter(cfg Config) *Limiter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	l := New(cfg)
	l.Stop()
	return l
}

func TestTakeConsumesCost(t *testing.T) {
	l := newTestLimiter(Config{TokensPerMinute: 60, Burst: 10})

	if !l.take("visitor", 5) {
		t.Fatal("first take within burst should pass")
	}
	if !l.take("visitor", 5) {
		t.Fatal("second take within burst should pass")
	}
	if l.take("visitor", 1) {
		t.Fatal("take beyond burst should fail")
	}
}

func TestTakeRefillsOverTime(t *testing.T) {
	l := newTestLimiter(Config{TokensPerMinute: 60, Burst: 5})

	base := time.Now()
	l.now = func() time.Time { return base }

	if !l.take("visitor", 5) {
		t.Fatal("burst take should pass")
	}
	if l.take("visitor", 5) {
		t.Fatal("drained bucket should reject")
	}

	l.now = func() time.Time { return base.Add(time.Minute) }
	if !l.take("visitor", 5) {
		t.Fatal("bucket should refill after a minute")
	}
}

func TestTakeKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(Config{TokensPerMinute: 60, Burst: 5})

	if !l.take("a", 5) {
		t.Fatal("first visitor should pass")
	}
	if !l.take("b", 5) {
		t.Fatal("second visitor has their own bucket")
	}
}

func TestCostByRoute(t *testing.T) {
	l := newTestLimiter(Config{})

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/chat", 5},
		{"/api/v1/admin/kb", 3},
		{"/api/v1/admin/turns", 1},
		{"/somewhere/else", 1},
	}

	for _, tt := range tests {
		if got := l.cost(tt.path); got != tt.want {
			t.Errorf("cost(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestMiddlewareExemptsProbes(t *testing.T) {
	l := newTestLimiter(Config{TokensPerMinute: 60, Burst: 1})

	app := fiber.New()
	app.Use(l.Middleware())
	app.Get("/api/v1/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("probe %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}
}

func TestMiddlewareLimitsChat(t *testing.T) {
	l := newTestLimiter(Config{TokensPerMinute: 60, Burst: 5})

	app := fiber.New()
	app.Use(l.Middleware())
	app.Post("/api/v1/chat", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := func() int {
		r := httptest.NewRequest("POST", "/api/v1/chat", nil)
		r.Header.Set("X-Session-ID", "visitor-1")
		resp, err := app.Test(r)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp.StatusCode
	}

	if got := req(); got != fiber.StatusOK {
		t.Fatalf("first chat request status = %d, want 200", got)
	}
	if got := req(); got != fiber.StatusTooManyRequests {
		t.Fatalf("second chat request status = %d, want 429", got)
	}
}
