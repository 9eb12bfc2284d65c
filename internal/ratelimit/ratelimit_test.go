package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiter_BucketRefillsOverWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	rule := Rule{Name: "login", Limit: 3, Window: 15 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(context.Background(), "login:10.0.0.1", rule, now)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 2-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, 2-i, res.Remaining)
		}
	}

	res, _ := limiter.Allow(context.Background(), "login:10.0.0.1", rule, now)
	if res.Allowed {
		t.Fatalf("fourth request should be limited")
	}
	if !res.Reset.After(now) {
		t.Fatalf("expected reset after now, got %s", res.Reset)
	}

	other, _ := limiter.Allow(context.Background(), "login:10.0.0.2", rule, now)
	if !other.Allowed {
		t.Fatalf("other clients have their own bucket")
	}

	// One token comes back every Window/Limit.
	later, _ := limiter.Allow(context.Background(), "login:10.0.0.1", rule, now.Add(6*time.Minute))
	if !later.Allowed {
		t.Fatalf("expected a refilled token after 6m")
	}
}

func TestMemoryLimiter_DisabledRule(t *testing.T) {
	limiter := NewMemoryLimiter()
	res, err := limiter.Allow(context.Background(), "k", Rule{Name: "x"}, time.Now())
	if err != nil || !res.Allowed {
		t.Fatalf("zero rule must allow, got %+v %v", res, err)
	}
}

func TestManager_FallsBackToMemoryWhenRedisUnreachable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dials := 0
	m := NewManager(
		func() Settings { return Settings{RedisEnabled: true, RedisAddr: "127.0.0.1:1"} },
		func() time.Time { return now },
		func(opts *redis.Options) *redis.Client {
			dials++
			opts.Dialer = func(context.Context, string, string) (net.Conn, error) {
				return nil, errors.New("dial refused")
			}
			opts.MaxRetries = -1
			return redis.NewClient(opts)
		},
	)
	rule := Rule{Name: "register", Limit: 1, Window: time.Minute}

	first, err := m.Allow(context.Background(), "register:1.2.3.4", rule)
	if err != nil || !first.Allowed {
		t.Fatalf("first request should pass through memory, got %+v %v", first, err)
	}
	second, _ := m.Allow(context.Background(), "register:1.2.3.4", rule)
	if second.Allowed {
		t.Fatalf("second request should be limited by memory backend")
	}
	if dials != 1 {
		t.Fatalf("breaker should stop redis retries, dialled %d times", dials)
	}
}

func TestMiddleware_Returns429WithHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(nil, func() time.Time { return now }, nil)

	r := gin.New()
	r.POST("/login", Middleware(m, Rule{Name: "login", Limit: 2, Window: 15 * time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		last = rec
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if last.Header().Get("X-RateLimit-Limit") != "2" || last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected headers %v", last.Header())
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
