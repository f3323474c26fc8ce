package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/reqbench/internal/model"
)

// EnvironmentServiceInterface は環境ハンドラーが必要とするサービスインターフェース。
type EnvironmentServiceInterface interface {
	Create(ctx context.Context, userID, name string, variables map[string]string) (*model.Environment, error)
	List(ctx context.Context, userID string) ([]*model.Environment, error)
	Get(ctx context.Context, userID, id string) (*model.Environment, error)
	GetActive(ctx context.Context, userID string) (*model.Environment, error)
	Update(ctx context.Context, userID, id string, name *string, variables map[string]string) (*model.Environment, error)
	Activate(ctx context.Context, userID, id string) (*model.Environment, error)
	Delete(ctx context.Context, userID, id string) error
}

// EnvironmentHandler は環境管理のHTTPハンドラー。
type EnvironmentHandler struct {
	service EnvironmentServiceInterface
}

// NewEnvironmentHandler はEnvironmentHandlerを生成する。
func NewEnvironmentHandler(service EnvironmentServiceInterface) *EnvironmentHandler {
	return &EnvironmentHandler{service: service}
}

// createEnvironmentRequest は環境作成リクエストのボディ。
type createEnvironmentRequest struct {
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables"`
}

// updateEnvironmentRequest は環境更新リクエストのボディ。nilのフィールドは変更しない。
type updateEnvironmentRequest struct {
	Name      *string           `json:"name"`
	Variables map[string]string `json:"variables"`
}

// Create は環境作成を処理する。
// POST /api/v1/environments
func (h *EnvironmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req createEnvironmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), identity.UserID, req.Name, req.Variables)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "環境を作成しました。", created)
}

// List はユーザーの環境一覧を返す。
// GET /api/v1/environments
func (h *EnvironmentHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	environments, err := h.service.List(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", environments)
}

// GetActive はユーザーのアクティブな環境を返す。存在しない場合はdataがnullになる。
// GET /api/v1/environments/active
func (h *EnvironmentHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	env, err := h.service.GetActive(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", env)
}

// Get は指定IDの環境を返す。
// GET /api/v1/environments/{id}
func (h *EnvironmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	env, err := h.service.Get(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", env)
}

// Update は環境の名前・変数の更新を処理する。
// PUT /api/v1/environments/{id}
func (h *EnvironmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req updateEnvironmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.Update(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Name, req.Variables)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "環境を更新しました。", updated)
}

// Activate は指定環境をアクティブにする。
// POST /api/v1/environments/{id}/activate
func (h *EnvironmentHandler) Activate(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	env, err := h.service.Activate(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "環境をアクティブにしました。", env)
}

// Delete は指定IDの環境を削除する。
// DELETE /api/v1/environments/{id}
func (h *EnvironmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "環境を削除しました。", nil)
}
