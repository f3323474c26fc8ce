package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/reqbench/internal/middleware"
	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/request"
)

// mockTokenVerifier はmiddleware.TokenVerifierのモック実装。
type mockTokenVerifier struct {
	verifyAccessFn func(ctx context.Context, rawToken string) (*model.Identity, error)
}

func (m *mockTokenVerifier) VerifyAccess(ctx context.Context, rawToken string) (*model.Identity, error) {
	if m.verifyAccessFn != nil {
		return m.verifyAccessFn(ctx, rawToken)
	}
	return nil, model.ErrUnauthenticated
}

// mockRequestService はRequestServiceInterfaceのモック実装。ルーティングテスト用。
type mockRequestService struct{}

func (m *mockRequestService) Create(ctx context.Context, userID string, input request.CreateInput) (*model.SavedRequest, error) {
	return &model.SavedRequest{ID: "req-1"}, nil
}
func (m *mockRequestService) ListByCollection(ctx context.Context, userID, collectionID string) ([]*model.SavedRequest, error) {
	return nil, nil
}
func (m *mockRequestService) Get(ctx context.Context, userID, id string) (*model.SavedRequest, error) {
	return &model.SavedRequest{ID: id}, nil
}
func (m *mockRequestService) Update(ctx context.Context, userID, id string, input request.UpdateInput) (*model.SavedRequest, error) {
	return &model.SavedRequest{ID: id}, nil
}
func (m *mockRequestService) Delete(ctx context.Context, userID, id string) error { return nil }
func (m *mockRequestService) Duplicate(ctx context.Context, userID, id string) (*model.SavedRequest, error) {
	return &model.SavedRequest{ID: "req-2"}, nil
}

// mockEnvironmentService はEnvironmentServiceInterfaceのモック実装。ルーティングテスト用。
type mockEnvironmentService struct{}

func (m *mockEnvironmentService) Create(ctx context.Context, userID, name string, variables map[string]string) (*model.Environment, error) {
	return &model.Environment{ID: "env-1"}, nil
}
func (m *mockEnvironmentService) List(ctx context.Context, userID string) ([]*model.Environment, error) {
	return nil, nil
}
func (m *mockEnvironmentService) Get(ctx context.Context, userID, id string) (*model.Environment, error) {
	return &model.Environment{ID: id}, nil
}
func (m *mockEnvironmentService) GetActive(ctx context.Context, userID string) (*model.Environment, error) {
	return nil, nil
}
func (m *mockEnvironmentService) Update(ctx context.Context, userID, id string, name *string, variables map[string]string) (*model.Environment, error) {
	return &model.Environment{ID: id}, nil
}
func (m *mockEnvironmentService) Activate(ctx context.Context, userID, id string) (*model.Environment, error) {
	return &model.Environment{ID: id, IsActive: true}, nil
}
func (m *mockEnvironmentService) Delete(ctx context.Context, userID, id string) error { return nil }

// newTestRouter はモック依存で構成したルーターを返す。
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	verifier := &mockTokenVerifier{
		verifyAccessFn: func(ctx context.Context, rawToken string) (*model.Identity, error) {
			if rawToken == "good-token" {
				return &model.Identity{UserID: "user-1", Email: "taro@example.com"}, nil
			}
			return nil, model.ErrUnauthenticated
		},
	}

	return NewRouter(&RouterDeps{
		TokenVerifier:      verifier,
		RateLimiter:        rl,
		AuthService:        &mockAuthService{},
		Executor:           &mockExecutor{},
		CollectionService:  &mockCollectionService{},
		RequestService:     &mockRequestService{},
		EnvironmentService: &mockEnvironmentService{},
		HistoryService:     &mockHistoryService{},
	})
}

// TestRouter_PublicRoutes は認証不要のルートがトークンなしで到達できることを検証する。
func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/api/v1/auth/register", http.StatusBadRequest}, // 空ボディ
		{http.MethodPost, "/api/v1/auth/login", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/auth/refresh", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}
}

// TestRouter_ProtectedRoutesRequireToken は保護ルートがトークンなしで401になることを検証する。
func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/collections"},
		{http.MethodPost, "/api/v1/requests/execute"},
		{http.MethodGet, "/api/v1/environments"},
		{http.MethodGet, "/api/v1/history"},
	}
	for _, tt := range paths {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, http.StatusUnauthorized)
		}
	}
}

// TestRouter_AuthenticatedAccess は有効なトークンで保護ルートに到達できることを検証する。
func TestRouter_AuthenticatedAccess(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/collections", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	result := parseSuccessResponse(t, w)
	if result["success"] != true {
		t.Error("success = false, want true")
	}
}

// TestRouter_SecurityHeaders は全レスポンスにセキュリティヘッダーが付与されることを検証する。
func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
}
