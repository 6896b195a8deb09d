package middlewares_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rjwalters/userhub/internal/http/middlewares"
)

func rateLimitedRouter(limit int, window time.Duration) *gin.Engine {
	rl := middlewares.NewRateLimiter(limit, window)

	r := gin.New()
	r.GET("/ping", rl.RateLimiterMiddleware(middlewares.KeyByIP), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	return r
}

func doGet(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestRateLimiter_EnforcesLimit(t *testing.T) {
	r := rateLimitedRouter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if w := doGet(r, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d got status %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	w := doGet(r, "10.0.0.1")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header on 429 responses")
	}

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body.Status != "fail" {
		t.Fatalf("expected status fail, got %q", body.Status)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	r := rateLimitedRouter(1, time.Minute)

	if w := doGet(r, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("first client should be admitted, got %d", w.Code)
	}
	if w := doGet(r, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client should be limited, got %d", w.Code)
	}

	// a different client is still within its own budget
	if w := doGet(r, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("second client should be admitted, got %d", w.Code)
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	r := rateLimitedRouter(1, 50*time.Millisecond)

	if w := doGet(r, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("first request should be admitted, got %d", w.Code)
	}
	if w := doGet(r, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}

	time.Sleep(60 * time.Millisecond)

	if w := doGet(r, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("request after the window should be admitted, got %d", w.Code)
	}
}
