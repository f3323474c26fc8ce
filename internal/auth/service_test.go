package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/reqbench/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	createFn          func(ctx context.Context, user *model.User) error
	findByIDFn        func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn     func(ctx context.Context, email string) (*model.User, error)
	updateProfileFn   func(ctx context.Context, user *model.User) error
	updatePasswordFn  func(ctx context.Context, userID, passwordHash string) error
	updateLastLoginFn func(ctx context.Context, userID string, at time.Time) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, userID, passwordHash)
	}
	return nil
}
func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, userID, at)
	}
	return nil
}

type mockTokenRepo struct {
	addFn       func(ctx context.Context, userID, token string) error
	containsFn  func(ctx context.Context, userID, token string) (bool, error)
	deleteFn    func(ctx context.Context, userID, token string) error
	deleteAllFn func(ctx context.Context, userID string) error
}

func (m *mockTokenRepo) Add(ctx context.Context, userID, token string) error {
	if m.addFn != nil {
		return m.addFn(ctx, userID, token)
	}
	return nil
}
func (m *mockTokenRepo) Contains(ctx context.Context, userID, token string) (bool, error) {
	if m.containsFn != nil {
		return m.containsFn(ctx, userID, token)
	}
	return false, nil
}
func (m *mockTokenRepo) Delete(ctx context.Context, userID, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, token)
	}
	return nil
}
func (m *mockTokenRepo) DeleteAll(ctx context.Context, userID string) error {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx, userID)
	}
	return nil
}

type mockTokenManager struct {
	issueFn         func(userID, email string) (string, string, error)
	issueAccessFn   func(userID, email string) (string, error)
	verifyRefreshFn func(rawToken string) (*model.Identity, error)
	revokeAccessFn  func(ctx context.Context, rawToken string)
}

func (m *mockTokenManager) Issue(userID, email string) (string, string, error) {
	if m.issueFn != nil {
		return m.issueFn(userID, email)
	}
	return "access-token", "refresh-token", nil
}
func (m *mockTokenManager) IssueAccess(userID, email string) (string, error) {
	if m.issueAccessFn != nil {
		return m.issueAccessFn(userID, email)
	}
	return "access-token", nil
}
func (m *mockTokenManager) VerifyRefresh(rawToken string) (*model.Identity, error) {
	if m.verifyRefreshFn != nil {
		return m.verifyRefreshFn(rawToken)
	}
	return nil, model.ErrInvalidRefreshToken
}
func (m *mockTokenManager) RevokeAccess(ctx context.Context, rawToken string) {
	if m.revokeAccessFn != nil {
		m.revokeAccessFn(ctx, rawToken)
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

// --- テスト ---

// TestService_Register は新規登録がユーザーを作成し、
// リフレッシュトークンを保持リストに登録することを検証する。
func TestService_Register(t *testing.T) {
	var createdUser *model.User
	var storedToken string

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	tokenRepo := &mockTokenRepo{
		addFn: func(ctx context.Context, userID, token string) error {
			storedToken = token
			return nil
		},
	}

	svc := NewService(userRepo, tokenRepo, &mockTokenManager{}, nil)

	user, pair, err := svc.Register(context.Background(), "Taro@Example.com", "password123", "太郎")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if createdUser == nil {
		t.Fatal("expected user Create to be called")
	}
	// メールアドレスは小文字に正規化される
	if user.Email != "taro@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "taro@example.com")
	}
	if user.PasswordHash == "" || user.PasswordHash == "password123" {
		t.Error("password must be stored as a hash")
	}
	if pair.RefreshToken != storedToken {
		t.Errorf("stored refresh token = %q, want %q", storedToken, pair.RefreshToken)
	}
}

// TestService_Register_DuplicateEmail は登録済みメールアドレスでの再登録が拒否されることを検証する。
func TestService_Register_DuplicateEmail(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
	}

	svc := NewService(userRepo, &mockTokenRepo{}, &mockTokenManager{}, nil)

	_, _, err := svc.Register(context.Background(), "taro@example.com", "password123", "太郎")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("Register error = %v, want DUPLICATE_EMAIL", err)
	}
}

// TestService_Register_Validation は不正な入力が検証エラーになることを検証する。
func TestService_Register_Validation(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockTokenRepo{}, &mockTokenManager{}, nil)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "password123"},
		{"malformed email", "not-an-email", "password123"},
		{"short password", "taro@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.email, tt.password, "太郎")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("Register error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

// TestService_Login はログイン成功時にトークンペアが発行され、
// 最終ログイン日時が更新されることを検証する。
func TestService_Login(t *testing.T) {
	lastLoginUpdated := false
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           "user-1",
				Email:        email,
				PasswordHash: hashPassword(t, "password123"),
			}, nil
		},
		updateLastLoginFn: func(ctx context.Context, userID string, at time.Time) error {
			lastLoginUpdated = true
			return nil
		},
	}

	svc := NewService(userRepo, &mockTokenRepo{}, &mockTokenManager{}, nil)

	user, pair, err := svc.Login(context.Background(), "taro@example.com", "password123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected a token pair to be issued")
	}
	if !lastLoginUpdated {
		t.Error("expected UpdateLastLogin to be called")
	}
	if user.LastLogin == nil {
		t.Error("expected LastLogin to be set on the returned user")
	}
}

// TestService_Login_InvalidCredentials はメールアドレス不存在とパスワード不一致が
// 同一のエラーになることを検証する。
func TestService_Login_InvalidCredentials(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email == "taro@example.com" {
				return &model.User{
					ID:           "user-1",
					Email:        email,
					PasswordHash: hashPassword(t, "password123"),
				}, nil
			}
			return nil, nil
		},
	}

	svc := NewService(userRepo, &mockTokenRepo{}, &mockTokenManager{}, nil)

	for _, tt := range []struct{ email, password string }{
		{"unknown@example.com", "password123"},
		{"taro@example.com", "wrong-password"},
	} {
		_, _, err := svc.Login(context.Background(), tt.email, tt.password)
		if !errors.Is(err, model.ErrInvalidCredentials) {
			t.Errorf("Login(%q) error = %v, want ErrInvalidCredentials", tt.email, err)
		}
	}
}

// TestService_Refresh は保持リストに存在するリフレッシュトークンで
// 新しいアクセストークンのみが発行されることを検証する。
// リフレッシュトークン自体は削除も再発行もされない。
func TestService_Refresh(t *testing.T) {
	tokenRepo := &mockTokenRepo{
		containsFn: func(ctx context.Context, userID, token string) (bool, error) {
			return token == "held-refresh", nil
		},
		deleteFn: func(ctx context.Context, userID, token string) error {
			t.Errorf("refresh token %q must not be deleted on refresh", token)
			return nil
		},
		addFn: func(ctx context.Context, userID, token string) error {
			t.Errorf("refresh token %q must not be stored on refresh", token)
			return nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "taro@example.com"}, nil
		},
	}
	manager := &mockTokenManager{
		verifyRefreshFn: func(rawToken string) (*model.Identity, error) {
			return &model.Identity{UserID: "user-1", Email: "taro@example.com"}, nil
		},
		issueAccessFn: func(userID, email string) (string, error) {
			return "new-access", nil
		},
	}

	svc := NewService(userRepo, tokenRepo, manager, nil)

	access, err := svc.Refresh(context.Background(), "held-refresh")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if access != "new-access" {
		t.Errorf("access token = %q, want %q", access, "new-access")
	}
}

// TestService_Refresh_NotHeld は署名が有効でも保持リストに存在しないトークンが
// 拒否されることを検証する。
func TestService_Refresh_NotHeld(t *testing.T) {
	tokenRepo := &mockTokenRepo{
		containsFn: func(ctx context.Context, userID, token string) (bool, error) {
			return false, nil
		},
	}
	manager := &mockTokenManager{
		verifyRefreshFn: func(rawToken string) (*model.Identity, error) {
			return &model.Identity{UserID: "user-1", Email: "taro@example.com"}, nil
		},
	}

	svc := NewService(&mockUserRepo{}, tokenRepo, manager, nil)

	_, err := svc.Refresh(context.Background(), "evicted-refresh")
	if !errors.Is(err, model.ErrInvalidRefreshToken) {
		t.Errorf("Refresh error = %v, want ErrInvalidRefreshToken", err)
	}
}

// TestService_Logout はアクセストークンの失効とリフレッシュトークンの削除を検証する。
func TestService_Logout(t *testing.T) {
	revokedToken := ""
	deletedToken := ""

	manager := &mockTokenManager{
		revokeAccessFn: func(ctx context.Context, rawToken string) {
			revokedToken = rawToken
		},
	}
	tokenRepo := &mockTokenRepo{
		deleteFn: func(ctx context.Context, userID, token string) error {
			deletedToken = token
			return nil
		},
	}

	svc := NewService(&mockUserRepo{}, tokenRepo, manager, nil)

	if err := svc.Logout(context.Background(), "user-1", "access-1", "refresh-1"); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if revokedToken != "access-1" {
		t.Errorf("revoked token = %q, want %q", revokedToken, "access-1")
	}
	if deletedToken != "refresh-1" {
		t.Errorf("deleted token = %q, want %q", deletedToken, "refresh-1")
	}
}

// TestService_LogoutAll は全リフレッシュトークンの削除を検証する。
func TestService_LogoutAll(t *testing.T) {
	deleteAllCalled := false
	tokenRepo := &mockTokenRepo{
		deleteAllFn: func(ctx context.Context, userID string) error {
			deleteAllCalled = true
			return nil
		},
	}

	svc := NewService(&mockUserRepo{}, tokenRepo, &mockTokenManager{}, nil)

	if err := svc.LogoutAll(context.Background(), "user-1", "access-1"); err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}
	if !deleteAllCalled {
		t.Error("expected DeleteAll to be called")
	}
}

// TestService_ChangePassword は現在のパスワード検証と、
// 変更後の全リフレッシュトークン無効化を検証する。
func TestService_ChangePassword(t *testing.T) {
	passwordUpdated := false
	tokensCleared := false

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, PasswordHash: hashPassword(t, "current-pass")}, nil
		},
		updatePasswordFn: func(ctx context.Context, userID, passwordHash string) error {
			passwordUpdated = true
			return nil
		},
	}
	tokenRepo := &mockTokenRepo{
		deleteAllFn: func(ctx context.Context, userID string) error {
			tokensCleared = true
			return nil
		},
	}

	svc := NewService(userRepo, tokenRepo, &mockTokenManager{}, nil)

	// 現在のパスワードが一致しない場合は拒否
	err := svc.ChangePassword(context.Background(), "user-1", "wrong-pass", "new-password")
	if !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("ChangePassword error = %v, want ErrInvalidCredentials", err)
	}

	if err := svc.ChangePassword(context.Background(), "user-1", "current-pass", "new-password"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if !passwordUpdated {
		t.Error("expected UpdatePassword to be called")
	}
	if !tokensCleared {
		t.Error("expected DeleteAll to be called after password change")
	}
}

// TestService_UpdateProfile はnilフィールドが変更されない部分更新を検証する。
func TestService_UpdateProfile(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "太郎", Avatar: "old.png"}, nil
		},
	}

	svc := NewService(userRepo, &mockTokenRepo{}, &mockTokenManager{}, nil)

	name := "次郎"
	user, err := svc.UpdateProfile(context.Background(), "user-1", &name, nil)
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if user.Name != "次郎" {
		t.Errorf("Name = %q, want %q", user.Name, "次郎")
	}
	if user.Avatar != "old.png" {
		t.Errorf("Avatar = %q, want unchanged %q", user.Avatar, "old.png")
	}
}
