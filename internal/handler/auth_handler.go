package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/reqbench/internal/auth"
	"github.com/hitoshi/reqbench/internal/middleware"
	"github.com/hitoshi/reqbench/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, name string) (*model.User, *auth.TokenPair, error)
	Login(ctx context.Context, email, password string) (*model.User, *auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID, accessToken, refreshToken string) error
	LogoutAll(ctx context.Context, userID, accessToken string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, name, avatar *string) (*model.User, error)
}

// AuthHandler は認証・プロフィール管理のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// registerRequest は新規登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest はトークン更新リクエストのボディ。
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// logoutRequest はログアウトリクエストのボディ。リフレッシュトークンは省略可能。
type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。nilのフィールドは変更しない。
type updateProfileRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

// changePasswordRequest はパスワード変更リクエストのボディ。
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// sessionData は登録・ログインのレスポンスデータ。
type sessionData struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Register は新規登録を処理する。
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, pair, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "ユーザーを登録しました。", sessionData{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Login はログインを処理する。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ログインしました。", sessionData{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh はリフレッシュトークンによるアクセストークンの更新を処理する。
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リフレッシュトークンを指定してください。"))
		return
	}

	accessToken, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]string{"accessToken": accessToken})
}

// Logout はログアウトを処理する。
// 提示されたアクセストークンを失効させ、リフレッシュトークンを保持リストから削除する。
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	// ボディは省略可能
	var req logoutRequest
	_ = decodeBodyIfPresent(r, &req)

	accessToken := middleware.AccessTokenFromContext(r.Context())
	if err := h.service.Logout(r.Context(), identity.UserID, accessToken, req.RefreshToken); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ログアウトしました。", nil)
}

// LogoutAll は全端末からのログアウトを処理する。
// POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	accessToken := middleware.AccessTokenFromContext(r.Context())
	if err := h.service.LogoutAll(r.Context(), identity.UserID, accessToken); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "全端末からログアウトしました。", nil)
}

// Me は認証済みユーザーのプロフィールを返す。
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	user, err := h.service.GetProfile(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", user)
}

// UpdateProfile はプロフィールの部分更新を処理する。
// PUT /api/v1/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), identity.UserID, req.Name, req.Avatar)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "プロフィールを更新しました。", user)
}

// ChangePassword はパスワード変更を処理する。
// PUT /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "パスワードを変更しました。", nil)
}
