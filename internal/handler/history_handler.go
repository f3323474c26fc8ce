package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
)

// HistoryServiceInterface は履歴ハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	List(ctx context.Context, userID string, filter repository.HistoryFilter) ([]*model.HistoryEntry, int, error)
	Get(ctx context.Context, userID, id string) (*model.HistoryEntry, error)
	Stats(ctx context.Context, userID string) (*model.HistoryStats, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

// HistoryHandler は実行履歴のHTTPハンドラー。
type HistoryHandler struct {
	service HistoryServiceInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// List は履歴一覧を実行日時降順で返す。
// GET /api/v1/history?method=&search=&page=&limit=
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	query := r.URL.Query()
	filter := repository.HistoryFilter{
		Method: strings.ToUpper(strings.TrimSpace(query.Get("method"))),
		Search: query.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(query.Get("page"))
	filter.Limit, _ = strconv.Atoi(query.Get("limit"))

	entries, total, err := h.service.List(r.Context(), identity.UserID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// サービス層で丸められた値をページングに反映する
	if filter.Page < 1 {
		filter.Page = 1
	}
	page := filter.Page
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}

	writePaginated(w, entries, newPagination(page, limit, total))
}

// Stats はユーザーの実行統計を返す。
// GET /api/v1/history/stats
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	stats, err := h.service.Stats(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", stats)
}

// Get は指定IDの履歴エントリを返す。
// GET /api/v1/history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	entry, err := h.service.Get(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", entry)
}

// Delete は指定IDの履歴エントリを削除する。
// DELETE /api/v1/history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "履歴を削除しました。", nil)
}

// Clear はユーザーの全履歴を削除する。冪等。
// DELETE /api/v1/history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	count, err := h.service.DeleteAll(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "全履歴を削除しました。", map[string]int64{"deletedCount": count})
}
