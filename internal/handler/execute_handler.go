package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/proxy"
)

// ExecutorInterface はプロキシ実行ハンドラーが必要とするインターフェース。
type ExecutorInterface interface {
	Execute(ctx context.Context, userID string, req *proxy.Request) (*model.HistoryEntry, error)
}

// ExecuteHandler はHTTPリクエスト代理実行のハンドラー。
type ExecuteHandler struct {
	executor ExecutorInterface
}

// NewExecuteHandler はExecuteHandlerを生成する。
func NewExecuteHandler(executor ExecutorInterface) *ExecuteHandler {
	return &ExecuteHandler{executor: executor}
}

// executeRequest は代理実行リクエストのボディ。
// TimeoutMsはミリ秒指定で、設定範囲にクランプされる。
type executeRequest struct {
	RequestID   *string           `json:"requestId"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"queryParams"`
	Body        json.RawMessage   `json:"body"`
	TimeoutMs   int64             `json:"timeout"`
}

// Execute はHTTPリクエストの代理実行を処理する。
// POST /api/v1/requests/execute
//
// リモートからHTTPレスポンスを受信した場合（4xx/5xxを含む）は200でレスポンス内容を返す。
// トランスポート層エラーの場合は500でエラー分類を返す。
// どちらの場合も履歴は既に記録済み。
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	identity := identityOrReject(w, r)
	if identity == nil {
		return
	}

	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.executor.Execute(r.Context(), identity.UserID, &proxy.Request{
		RequestID:   req.RequestID,
		Method:      req.Method,
		URL:         req.URL,
		Headers:     req.Headers,
		QueryParams: req.QueryParams,
		Body:        req.Body,
		Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if entry.Error != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   false,
			"error":     entry.Error,
			"historyId": entry.ID,
		})
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"response":  entry.Response,
		"historyId": entry.ID,
	})
}
