package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/request"
)

// RequestServiceInterface は保存済みリクエストハンドラーが必要とするサービスインターフェース。
type RequestServiceInterface interface {
	Create(ctx context.Context, userID string, input request.CreateInput) (*model.SavedRequest, error)
	ListByCollection(ctx context.Context, userID, collectionID string) ([]*model.SavedRequest, error)
	Get(ctx context.Context, userID, id string) (*model.SavedRequest, error)
	Update(ctx context.Context, userID, id string, input request.UpdateInput) (*model.SavedRequest, error)
	Delete(ctx context.Context, userID, id string) error
	Duplicate(ctx context.Context, userID, id string) (*model.SavedRequest, error)
}

// RequestHandler は保存済みリクエスト管理のHTTPハンドラー。
type RequestHandler struct {
	service RequestServiceInterface
}

// NewRequestHandler はRequestHandlerを生成する。
func NewRequestHandler(service RequestServiceInterface) *RequestHandler {
	return &RequestHandler{service: service}
}

// createRequestRequest は保存済みリクエスト作成リクエストのボディ。
type createRequestRequest struct {
	CollectionID string            `json:"collectionId"`
	Name         string            `json:"name"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	QueryParams  map[string]string `json:"queryParams"`
	Body         json.RawMessage   `json:"body"`
	BodyType     model.BodyType    `json:"bodyType"`
	Description  string            `json:"description"`
	SortOrder    int               `json:"order"`
}

// updateRequestRequest は保存済みリクエスト更新リクエストのボディ。nilのフィールドは変更しない。
type updateRequestRequest struct {
	CollectionID *string           `json:"collectionId"`
	Name         *string           `json:"name"`
	Method       *string           `json:"method"`
	URL          *string           `json:"url"`
	Headers      map[string]string `json:"headers"`
	QueryParams  map[string]string `json:"queryParams"`
	Body         json.RawMessage   `json:"body"`
	BodyType     *model.BodyType   `json:"bodyType"`
	Description  *string           `json:"description"`
	SortOrder    *int              `json:"order"`
}

// Create は保存済みリクエスト作成を処理する。
// POST /api/v1/requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req createRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), identity.UserID, request.CreateInput{
		CollectionID: req.CollectionID,
		Name:         req.Name,
		Method:       req.Method,
		URL:          req.URL,
		Headers:      req.Headers,
		QueryParams:  req.QueryParams,
		Body:         req.Body,
		BodyType:     req.BodyType,
		Description:  req.Description,
		SortOrder:    req.SortOrder,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "リクエストを作成しました。", created)
}

// ListByCollection はコレクション内のリクエスト一覧を返す。
// GET /api/v1/requests/collection/{collectionId}
func (h *RequestHandler) ListByCollection(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	requests, err := h.service.ListByCollection(r.Context(), identity.UserID, chi.URLParam(r, "collectionId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", requests)
}

// Get は指定IDのリクエストを返す。
// GET /api/v1/requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
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

// Update はリクエストの部分更新を処理する。
// PUT /api/v1/requests/{id}
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req updateRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.Update(r.Context(), identity.UserID, chi.URLParam(r, "id"), request.UpdateInput{
		CollectionID: req.CollectionID,
		Name:         req.Name,
		Method:       req.Method,
		URL:          req.URL,
		Headers:      req.Headers,
		QueryParams:  req.QueryParams,
		Body:         req.Body,
		BodyType:     req.BodyType,
		Description:  req.Description,
		SortOrder:    req.SortOrder,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "リクエストを更新しました。", updated)
}

// Delete は指定IDのリクエストを削除する。
// DELETE /api/v1/requests/{id}
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "リクエストを削除しました。", nil)
}

// Duplicate はリクエストを同一コレクション内に複製する。
// POST /api/v1/requests/{id}/duplicate
func (h *RequestHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	copied, err := h.service.Duplicate(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "リクエストを複製しました。", copied)
}
