package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/reqbench/internal/collection"
	"github.com/hitoshi/reqbench/internal/model"
)

// CollectionServiceInterface はコレクションハンドラーが必要とするサービスインターフェース。
type CollectionServiceInterface interface {
	Create(ctx context.Context, userID string, input collection.CreateInput) (*model.Collection, error)
	List(ctx context.Context, userID string) ([]*model.Collection, error)
	Get(ctx context.Context, userID, id string) (*model.Collection, error)
	Update(ctx context.Context, userID, id string, input collection.UpdateInput) (*model.Collection, error)
	Delete(ctx context.Context, userID, id string) error
	Duplicate(ctx context.Context, userID, id string) (*model.Collection, error)
}

// CollectionHandler はコレクション管理のHTTPハンドラー。
type CollectionHandler struct {
	service CollectionServiceInterface
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(service CollectionServiceInterface) *CollectionHandler {
	return &CollectionHandler{service: service}
}

// createCollectionRequest はコレクション作成リクエストのボディ。
type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	IsPublic    bool   `json:"isPublic"`
}

// updateCollectionRequest はコレクション更新リクエストのボディ。nilのフィールドは変更しない。
type updateCollectionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	Icon        *string `json:"icon"`
	IsPublic    *bool   `json:"isPublic"`
}

// Create はコレクション作成を処理する。
// POST /api/v1/collections
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req createCollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), identity.UserID, collection.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "コレクションを作成しました。", created)
}

// List はユーザーのコレクション一覧を返す。
// GET /api/v1/collections
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	collections, err := h.service.List(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", collections)
}

// Get は指定IDのコレクションを返す。
// GET /api/v1/collections/{id}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	found, err := h.service.Get(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", found)
}

// Update はコレクションの部分更新を処理する。
// PUT /api/v1/collections/{id}
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req updateCollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.Update(r.Context(), identity.UserID, chi.URLParam(r, "id"), collection.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "コレクションを更新しました。", updated)
}

// Delete は指定IDのコレクションを削除する。所属リクエストも削除される。
// DELETE /api/v1/collections/{id}
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "コレクションを削除しました。", nil)
}

// Duplicate はコレクションを所属リクエストごと複製する。
// POST /api/v1/collections/{id}/duplicate
func (h *CollectionHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	copied, err := h.service.Duplicate(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "コレクションを複製しました。", copied)
}
