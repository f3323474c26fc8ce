package model

import (
	"encoding/json"
	"time"
)

// ExecutionResponse はプロキシ実行でリモートから受信したHTTPレスポンスを表す。
// 4xx/5xxを含む、あらゆるHTTPステータスのレスポンスがここに分類される。
type ExecutionResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Data       json.RawMessage   `json:"data"`
	TimeMs     int64             `json:"time"`
	SizeBytes  int64             `json:"size"`
}

// ExecutionError はプロキシ実行のトランスポート層エラーを表す。
// DNS解決失敗、接続失敗、TLSエラー、タイムアウトのみがここに分類される。
type ExecutionError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ExecutionOutcome はプロキシ実行1回の結果を表すタグ付きバリアント。
// ResponseとErrorのどちらか一方のみが非nilになる。
// 実行1回につき必ず1つだけ生成される。
type ExecutionOutcome struct {
	Response *ExecutionResponse
	Error    *ExecutionError
}

// Failed はトランスポート層エラーの結果かどうかを返す。
func (o *ExecutionOutcome) Failed() bool {
	return o.Error != nil
}

// HistoryEntry はリクエスト実行1回の監査記録を表す。
// 書き込み後は不変で、保持期間（30日）経過後にワーカーが削除する。
type HistoryEntry struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	RequestID  *string            `json:"requestId"`
	Method     string             `json:"method"`
	URL        string             `json:"url"`
	Headers    map[string]string  `json:"headers"`
	Body       json.RawMessage    `json:"body,omitempty"`
	Response   *ExecutionResponse `json:"response,omitempty"`
	Error      *ExecutionError    `json:"error,omitempty"`
	ExecutedAt time.Time          `json:"executedAt"`
}

// HistoryMethodStat はHTTPメソッドごとの実行統計を表す。
type HistoryMethodStat struct {
	Method    string  `json:"method"`
	Count     int     `json:"count"`
	AvgTimeMs float64 `json:"avgTime"`
}

// HistoryStats はユーザーの実行履歴統計を表す。
type HistoryStats struct {
	TotalRequests int                 `json:"totalRequests"`
	ByMethod      []HistoryMethodStat `json:"byMethod"`
}
