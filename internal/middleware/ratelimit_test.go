package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/moneymonitor/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/portfolios", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

// --- RateLimiter (API全般 / インポート) のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:  2,
		GeneralBurst: 5,
		ImportRate:   1,
		ImportBurst:  1,
	}, nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	m := &recordingMetrics{}
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:  0.5, // 2秒に1回
		GeneralBurst: 2,
		ImportRate:   1,
		ImportBurst:  1,
	}, m)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", body.Code)
	}
	if len(m.rateLimited) != 1 || m.rateLimited[0] != "general" {
		t.Errorf("rate limited metrics = %v, want [general]", m.rateLimited)
	}

	// 他のユーザーは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestImportMiddleware_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:  1,
		GeneralBurst: 100,
		ImportRate:   0.1,
		ImportBurst:  1,
	}, nil)
	defer rl.Stop()

	importHandler := rl.ImportMiddleware()(okHandler())
	generalHandler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	importHandler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first import status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	importHandler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second import status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	generalHandler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}

	if rl.ImportLimiterCount() != 1 || rl.GeneralLimiterCount() != 1 {
		t.Errorf("limiter counts = %d/%d, want 1/1", rl.GeneralLimiterCount(), rl.ImportLimiterCount())
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil)
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/portfolios", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		ImportRate:      1,
		ImportBurst:     1,
		CleanupInterval: 50 * time.Millisecond,
	}, nil)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-cleanup"))
	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍
	deadline := time.Now().Add(2 * time.Second)
	for rl.GeneralLimiterCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil)
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 {
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.ImportBurst != 10 {
		t.Errorf("ImportBurst = %d, want 10", cfg.ImportBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}

// --- 認証エンドポイントのレート制限 ---

func newAuthLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(store.Stop)
	return ratelimit.NewLimiter(store, ratelimit.Config{MaxAttempts: 2, Window: time.Minute})
}

func authRequest(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = ip + ":52100"
	return req
}

func TestAuthRateLimit_FailuresLeadTo429(t *testing.T) {
	m := &recordingMetrics{}
	limiter := newAuthLimiter(t)

	calls := 0
	handler := NewAuthRateLimitMiddleware(limiter, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authRequest("198.51.100.1"))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authRequest("198.51.100.1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
	if sec, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || sec < 1 || sec > 60 {
		t.Errorf("Retry-After = %q, want 1..60", w.Header().Get("Retry-After"))
	}
	if len(m.rateLimited) != 1 || m.rateLimited[0] != "auth" {
		t.Errorf("rate limited metrics = %v, want [auth]", m.rateLimited)
	}

	// 別IPは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authRequest("198.51.100.2"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("other ip status = %d, want 401", w.Code)
	}
}

func TestAuthRateLimit_SuccessResetsCounter(t *testing.T) {
	limiter := newAuthLimiter(t)
	status := http.StatusUnauthorized
	handler := NewAuthRateLimitMiddleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), authRequest("198.51.100.1"))

	status = http.StatusOK
	handler.ServeHTTP(httptest.NewRecorder(), authRequest("198.51.100.1"))

	st, err := limiter.Check(context.Background(), "198.51.100.1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st.Remaining != 2 {
		t.Errorf("remaining = %d, want 2 after successful attempt", st.Remaining)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q, want 203.0.113.9", got)
	}
	req.RemoteAddr = "203.0.113.9"
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q, want 203.0.113.9", got)
	}
}
