package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/reqbench/internal/model"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    2,
		ExecuteRate:     rate.Limit(1.0 / 60.0),
		ExecuteBurst:    1,
		CleanupInterval: time.Minute,
	}
}

func requestWithIdentity(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/collections", nil)
	ctx := ContextWithIdentity(req.Context(), &model.Identity{UserID: userID})
	return req.WithContext(ctx)
}

// TestRateLimiter_GeneralMiddleware はバースト超過後に429が返ることを検証する。
func TestRateLimiter_GeneralMiddleware(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト分（2回）は許可される
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithIdentity("user-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	// 3回目は拒否される
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithIdentity("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// 他ユーザーは影響を受けない
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithIdentity("user-2"))
	if rec.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestRateLimiter_ExecuteMiddlewareIndependent はプロキシ実行の制限が
// API全般の制限と独立に動作することを検証する。
func TestRateLimiter_ExecuteMiddlewareIndependent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	executeHandler := rl.ExecuteMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	generalHandler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// プロキシ実行のバースト（1回）を使い切る
	rec := httptest.NewRecorder()
	executeHandler.ServeHTTP(rec, requestWithIdentity("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec = httptest.NewRecorder()
	executeHandler.ServeHTTP(rec, requestWithIdentity("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("execute status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// API全般の制限は消費されていない
	rec = httptest.NewRecorder()
	generalHandler.ServeHTTP(rec, requestWithIdentity("user-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("general status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestRateLimiter_RequiresIdentity はアイデンティティなしのリクエストが401になることを検証する。
func TestRateLimiter_RequiresIdentity(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/collections", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// TestRateLimiter_Cleanup は期限切れエントリがクリーンアップで削除されることを検証する。
func TestRateLimiter_Cleanup(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.getOrCreateGeneralLimiter("user-1")
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.GeneralLimiterCount())
	}

	// TTL（CleanupInterval * 2）経過後のクリーンアップを待つ
	deadline := time.Now().Add(time.Second)
	for rl.GeneralLimiterCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("limiter count = %d after cleanup, want 0", rl.GeneralLimiterCount())
	}
}
