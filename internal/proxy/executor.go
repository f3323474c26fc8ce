// Package proxy はユーザー指定のHTTPリクエストを代理実行する機能を提供する。
//
// 実行結果は2値に分類される:
//   - Success: リモートからHTTPレスポンスを受信した（4xx/5xxを含む）
//   - Failure: トランスポート層エラー（DNS解決失敗、接続失敗、TLSエラー、タイムアウト）
//
// どちらの場合も実行履歴が必ず1件記録される。
package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/reqbench/internal/metrics"
	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/security"
)

// recordTimeout は履歴書き込みのデッドライン。
const recordTimeout = 10 * time.Second

// トランスポート層エラーの分類コード
const (
	FailureCodeTimeout    = "timeout"
	FailureCodeDNS        = "dns"
	FailureCodeTLS        = "tls"
	FailureCodeConnection = "connection"
	FailureCodeOther      = "other"
)

// allowedMethods は代理実行で受け付けるHTTPメソッド。
var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// bodyMethods はリクエストボディを送信するHTTPメソッド。
// それ以外のメソッドではボディは無視される。
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Request は代理実行するHTTPリクエストの記述子。
type Request struct {
	// RequestID は保存済みリクエストから実行された場合のそのID。アドホック実行ではnil。
	RequestID   *string
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string]string
	Body        json.RawMessage
	// Timeout は0の場合デフォルト値が適用され、設定範囲にクランプされる。
	Timeout time.Duration
}

// HistorySink は実行履歴の記録先インターフェース。
type HistorySink interface {
	Record(ctx context.Context, entry *model.HistoryEntry) error
}

// Config はExecutorの設定。
type Config struct {
	TimeoutDefault time.Duration // デフォルト: 30秒
	TimeoutMin     time.Duration // デフォルト: 1秒
	TimeoutMax     time.Duration // デフォルト: 60秒
	MaxBodySize    int64         // レスポンスボディの読み取り上限。デフォルト: 10MiB
	// GuardEnabled が真の場合、プライベートアドレス帯への送信をブロックする。
	GuardEnabled bool
}

// Executor はHTTPリクエストの代理実行を行う。
type Executor struct {
	cfg       Config
	client    *http.Client
	guard     security.EgressGuard
	sink      HistorySink
	collector metrics.ExecutionCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor はExecutorを生成する。
// guardはGuardEnabledが偽の場合nilでよい。collectorはnilでもよい。
func NewExecutor(cfg Config, sink HistorySink, guard security.EgressGuard, collector metrics.ExecutionCollector, logger *slog.Logger) *Executor {
	if cfg.TimeoutDefault == 0 {
		cfg.TimeoutDefault = 30 * time.Second
	}
	if cfg.TimeoutMin == 0 {
		cfg.TimeoutMin = 1 * time.Second
	}
	if cfg.TimeoutMax == 0 {
		cfg.TimeoutMax = 60 * time.Second
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 10 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:       cfg,
		client:    &http.Client{},
		guard:     guard,
		sink:      sink,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute はリクエストを代理実行し、記録済みの履歴エントリを返す。
//
// HTTPレスポンスの受信とトランスポート層エラーはどちらも正常な実行結果であり、
// エラーを返すのは実行前の検証失敗のみ。
// 送信はリクエスト元クライアントの切断と独立したデッドラインで行う。
// 切断されても実行は完了し、履歴が記録される。
func (e *Executor) Execute(ctx context.Context, userID string, req *Request) (*model.HistoryEntry, error) {
	method, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	timeout := e.clampTimeout(req.Timeout)

	outReq, err := e.buildRequest(method, req)
	if err != nil {
		return nil, model.NewValidationError(fmt.Sprintf("リクエストを構築できません: %v", err))
	}

	outcome := e.dispatch(outReq, timeout)

	entry := &model.HistoryEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		RequestID:  req.RequestID,
		Method:     method,
		URL:        req.URL,
		Headers:    req.Headers,
		Body:       req.Body,
		Response:   outcome.Response,
		Error:      outcome.Error,
		ExecutedAt: e.now(),
	}

	// 履歴は実行結果にかかわらず必ず記録する。
	// クライアントが切断済みでも記録が成立するよう、呼び出し元のキャンセルから切り離す。
	// 記録失敗は実行結果をクライアントに返すことを妨げない。
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := e.sink.Record(recordCtx, entry); err != nil {
		e.logger.Error("実行履歴の記録に失敗しました",
			slog.String("user_id", userID),
			slog.String("url", req.URL),
			slog.String("error", err.Error()),
		)
	} else if e.collector != nil {
		e.collector.RecordHistoryRecorded()
	}

	return entry, nil
}

// validate はリクエスト記述子を検証し、正規化済みメソッドを返す。
func (e *Executor) validate(req *Request) (string, error) {
	if req.URL == "" {
		return "", model.NewValidationError("URLを指定してください。")
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", model.NewValidationError("URLの形式が正しくありません。")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", model.NewValidationError("URLはhttpまたはhttpsで始まる必要があります。")
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return "", model.NewValidationError(fmt.Sprintf("メソッド%sはサポートされていません。", method))
	}

	if e.cfg.GuardEnabled && e.guard != nil {
		if err := e.guard.ValidateURL(req.URL); err != nil {
			return "", model.NewValidationError(fmt.Sprintf("この接続先への送信は許可されていません: %v", err))
		}
	}

	return method, nil
}

// clampTimeout はタイムアウトを設定範囲にクランプする。0はデフォルト値になる。
func (e *Executor) clampTimeout(timeout time.Duration) time.Duration {
	if timeout == 0 {
		return e.cfg.TimeoutDefault
	}
	if timeout < e.cfg.TimeoutMin {
		return e.cfg.TimeoutMin
	}
	if timeout > e.cfg.TimeoutMax {
		return e.cfg.TimeoutMax
	}
	return timeout
}

// buildRequest は送信用のhttp.Requestを構築する。
// ボディはPOST/PUT/PATCHの場合のみ添付する。
func (e *Executor) buildRequest(method string, req *Request) (*http.Request, error) {
	var body io.Reader
	if bodyMethods[method] && len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	outReq, err := http.NewRequest(method, req.URL, body)
	if err != nil {
		return nil, err
	}

	if len(req.QueryParams) > 0 {
		q := outReq.URL.Query()
		for key, value := range req.QueryParams {
			q.Set(key, value)
		}
		outReq.URL.RawQuery = q.Encode()
	}

	for key, value := range req.Headers {
		if key == "" {
			continue
		}
		outReq.Header.Set(key, value)
	}
	if body != nil && outReq.Header.Get("Content-Type") == "" {
		outReq.Header.Set("Content-Type", "application/json")
	}

	return outReq, nil
}

// dispatch はリクエストを送信して結果を分類する。
// デッドラインはリクエスト元クライアントのコンテキストから独立させる。
func (e *Executor) dispatch(outReq *http.Request, timeout time.Duration) *model.ExecutionOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := e.client
	if e.cfg.GuardEnabled && e.guard != nil {
		client = e.guard.NewSafeClient(timeout)
	}

	start := e.now()
	resp, err := client.Do(outReq.WithContext(ctx))

	if err != nil {
		if e.collector != nil {
			e.collector.RecordExecuteLatency(time.Since(start))
		}
		code := classifyTransportError(err)
		if e.collector != nil {
			e.collector.RecordExecuteFailure(code)
		}
		e.logger.Info("代理実行がトランスポート層エラーになりました",
			slog.String("url", outReq.URL.String()),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return &model.ExecutionOutcome{
			Error: &model.ExecutionError{
				Message: transportErrorMessage(code),
				Code:    code,
			},
		}
	}
	defer resp.Body.Close()

	// 所要時間はボディの受信完了までを含む
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodySize))
	elapsed := time.Since(start)

	if e.collector != nil {
		e.collector.RecordExecuteLatency(elapsed)
	}

	if readErr != nil {
		code := classifyTransportError(readErr)
		if e.collector != nil {
			e.collector.RecordExecuteFailure(code)
		}
		return &model.ExecutionOutcome{
			Error: &model.ExecutionError{
				Message: transportErrorMessage(code),
				Code:    code,
			},
		}
	}

	if e.collector != nil {
		e.collector.RecordExecuteResponse(resp.StatusCode)
	}

	return &model.ExecutionOutcome{
		Response: &model.ExecutionResponse{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Headers:    flattenHeaders(resp.Header),
			Data:       asJSONValue(data),
			TimeMs:     elapsed.Milliseconds(),
			SizeBytes:  int64(len(data)),
		},
	}
}

// classifyTransportError はトランスポート層エラーを閉じた分類コードに変換する。
func classifyTransportError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureCodeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureCodeTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureCodeDNS
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return FailureCodeTLS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureCodeConnection
	}
	return FailureCodeOther
}

// transportErrorMessage は分類コードに対応するユーザー向けメッセージを返す。
func transportErrorMessage(code string) string {
	switch code {
	case FailureCodeTimeout:
		return "リクエストがタイムアウトしました。"
	case FailureCodeDNS:
		return "ホスト名を解決できませんでした。"
	case FailureCodeTLS:
		return "TLS接続の確立に失敗しました。"
	case FailureCodeConnection:
		return "接続先サーバーに到達できませんでした。"
	default:
		return "リクエストの送信に失敗しました。"
	}
}

// flattenHeaders はレスポンスヘッダーを先頭値のみのmapに平坦化する。
func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}
	return flat
}

// asJSONValue はレスポンスボディをJSON値として格納可能な形に変換する。
// 有効なJSONはそのまま、それ以外はJSON文字列としてエンコードする。
func asJSONValue(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	encoded, err := json.Marshal(string(data))
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(encoded)
}
