package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/security"
)

// --- モック ---

type mockSink struct {
	mu       sync.Mutex
	recordFn func(ctx context.Context, entry *model.HistoryEntry) error
	entries  []*model.HistoryEntry
}

func (m *mockSink) Record(ctx context.Context, entry *model.HistoryEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	if m.recordFn != nil {
		return m.recordFn(ctx, entry)
	}
	return nil
}

func (m *mockSink) recorded() []*model.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.HistoryEntry(nil), m.entries...)
}

func newTestExecutor(sink HistorySink) *Executor {
	return NewExecutor(Config{
		TimeoutMin: 10 * time.Millisecond,
	}, sink, nil, nil, nil)
}

// --- テスト ---

// TestExecutor_Execute_Success はHTTPレスポンス受信が実行成功として
// 分類され、履歴が記録されることを検証する。
func TestExecutor_Execute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"message":"hello"}`)
	}))
	defer server.Close()

	sink := &mockSink{}
	e := newTestExecutor(sink)

	entry, err := e.Execute(context.Background(), "user-1", &Request{
		Method: "get",
		URL:    server.URL,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Error != nil {
		t.Fatalf("entry.Error = %+v, want nil", entry.Error)
	}
	if entry.Response == nil {
		t.Fatal("entry.Response is nil")
	}
	if entry.Response.Status != http.StatusOK {
		t.Errorf("Status = %d, want %d", entry.Response.Status, http.StatusOK)
	}
	if string(entry.Response.Data) != `{"message":"hello"}` {
		t.Errorf("Data = %s, want JSON body", entry.Response.Data)
	}
	if entry.Response.SizeBytes != int64(len(`{"message":"hello"}`)) {
		t.Errorf("SizeBytes = %d, want %d", entry.Response.SizeBytes, len(`{"message":"hello"}`))
	}
	// メソッドは大文字に正規化される
	if entry.Method != http.MethodGet {
		t.Errorf("Method = %q, want %q", entry.Method, http.MethodGet)
	}
	if len(sink.entries) != 1 {
		t.Errorf("recorded %d history entries, want 1", len(sink.entries))
	}
}

// TestExecutor_Execute_HTTPErrorStatusIsSuccess は4xx/5xxレスポンスが
// トランスポート層エラーではなく実行成功として分類されることを検証する。
func TestExecutor_Execute_HTTPErrorStatusIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &mockSink{}
	e := newTestExecutor(sink)

	entry, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Error != nil {
		t.Errorf("entry.Error = %+v, want nil for HTTP 500", entry.Error)
	}
	if entry.Response == nil || entry.Response.Status != http.StatusInternalServerError {
		t.Errorf("Response = %+v, want status 500", entry.Response)
	}
}

// TestExecutor_Execute_TransportFailure は接続失敗がFailureとして分類され、
// それでも履歴が記録されることを検証する。
func TestExecutor_Execute_TransportFailure(t *testing.T) {
	// 接続先のないポートに向けて即座にクローズさせる
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	sink := &mockSink{}
	e := newTestExecutor(sink)

	entry, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodGet,
		URL:    addr,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Response != nil {
		t.Errorf("entry.Response = %+v, want nil", entry.Response)
	}
	if entry.Error == nil {
		t.Fatal("entry.Error is nil, want transport failure")
	}
	if entry.Error.Code != FailureCodeConnection {
		t.Errorf("Error.Code = %q, want %q", entry.Error.Code, FailureCodeConnection)
	}
	if len(sink.entries) != 1 {
		t.Errorf("recorded %d history entries, want 1", len(sink.entries))
	}
}

// TestExecutor_Execute_Timeout は応答しないサーバーへの実行がtimeoutとして
// 分類されることを検証する。
func TestExecutor_Execute_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	sink := &mockSink{}
	e := newTestExecutor(sink)

	entry, err := e.Execute(context.Background(), "user-1", &Request{
		Method:  http.MethodGet,
		URL:     server.URL,
		Timeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Error == nil || entry.Error.Code != FailureCodeTimeout {
		t.Errorf("entry.Error = %+v, want code %q", entry.Error, FailureCodeTimeout)
	}
}

// TestExecutor_Execute_Validation は実行前の検証失敗がエラーを返し、
// 履歴が記録されないことを検証する。
func TestExecutor_Execute_Validation(t *testing.T) {
	sink := &mockSink{}
	e := newTestExecutor(sink)

	tests := []struct {
		name string
		req  *Request
	}{
		{"empty URL", &Request{Method: http.MethodGet}},
		{"no scheme", &Request{Method: http.MethodGet, URL: "example.com/path"}},
		{"disallowed scheme", &Request{Method: http.MethodGet, URL: "ftp://example.com"}},
		{"disallowed method", &Request{Method: "TRACE", URL: "https://example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), "user-1", tt.req)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("Execute error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
	if len(sink.entries) != 0 {
		t.Errorf("recorded %d history entries for invalid requests, want 0", len(sink.entries))
	}
}

// TestExecutor_Execute_BodyOnlyForWriteMethods はボディがPOST/PUT/PATCHでのみ
// 送信されることを検証する。
func TestExecutor_Execute_BodyOnlyForWriteMethods(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	e := newTestExecutor(&mockSink{})
	body := json.RawMessage(`{"key":"value"}`)

	if _, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodPost, URL: server.URL, Body: body,
	}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if string(received) != `{"key":"value"}` {
		t.Errorf("POST body = %q, want %q", received, `{"key":"value"}`)
	}

	if _, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodGet, URL: server.URL, Body: body,
	}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(received) != 0 {
		t.Errorf("GET body = %q, want empty", received)
	}
}

// TestExecutor_Execute_QueryParamsAndHeaders はクエリパラメータとヘッダーが
// 送信リクエストに反映されることを検証する。
func TestExecutor_Execute_QueryParamsAndHeaders(t *testing.T) {
	var gotQuery, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("page")
		gotHeader = r.Header.Get("X-Api-Key")
	}))
	defer server.Close()

	e := newTestExecutor(&mockSink{})

	_, err := e.Execute(context.Background(), "user-1", &Request{
		Method:      http.MethodGet,
		URL:         server.URL,
		QueryParams: map[string]string{"page": "2"},
		Headers:     map[string]string{"X-Api-Key": "secret"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if gotQuery != "2" {
		t.Errorf("query param page = %q, want %q", gotQuery, "2")
	}
	if gotHeader != "secret" {
		t.Errorf("header X-Api-Key = %q, want %q", gotHeader, "secret")
	}
}

// TestExecutor_Execute_SinkFailureDoesNotSurface は履歴記録の失敗が
// 実行結果の返却を妨げないことを検証する。
func TestExecutor_Execute_SinkFailureDoesNotSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	sink := &mockSink{
		recordFn: func(ctx context.Context, entry *model.HistoryEntry) error {
			return errors.New("db down")
		},
	}
	e := newTestExecutor(sink)

	entry, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Response == nil {
		t.Error("expected a response despite sink failure")
	}
}

// TestExecutor_Execute_ClientDisconnected はリクエスト元クライアントが切断済みでも
// 実行が完了し、履歴記録がキャンセルに巻き込まれないことを検証する。
func TestExecutor_Execute_ClientDisconnected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	var sinkCtxErr error
	sink := &mockSink{
		recordFn: func(ctx context.Context, entry *model.HistoryEntry) error {
			sinkCtxErr = ctx.Err()
			return nil
		},
	}
	e := newTestExecutor(sink)

	// クライアント切断をキャンセル済みコンテキストで再現する
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry, err := e.Execute(ctx, "user-1", &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Response == nil || entry.Response.Status != http.StatusOK {
		t.Errorf("Response = %+v, want status 200 despite disconnected client", entry.Response)
	}
	if sinkCtxErr != nil {
		t.Errorf("sink context error = %v, want nil (record must not inherit caller cancellation)", sinkCtxErr)
	}
	if len(sink.recorded()) != 1 {
		t.Errorf("recorded %d history entries, want 1", len(sink.recorded()))
	}
}

// TestExecutor_Execute_TimeIncludesBodyRead は所要時間にレスポンスボディの
// 受信完了までが含まれることを検証する。
func TestExecutor_Execute_TimeIncludesBodyRead(t *testing.T) {
	const bodyDelay = 100 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(bodyDelay)
		io.WriteString(w, `{"late":"body"}`)
	}))
	defer server.Close()

	sink := &mockSink{}
	e := newTestExecutor(sink)

	entry, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if entry.Response == nil {
		t.Fatal("entry.Response is nil")
	}
	if entry.Response.TimeMs < bodyDelay.Milliseconds() {
		t.Errorf("TimeMs = %d, want >= %d (body receive time must be included)",
			entry.Response.TimeMs, bodyDelay.Milliseconds())
	}
}

// TestExecutor_Execute_ConcurrentRecordsIndependently は並行実行がそれぞれ
// 独立した履歴エントリを1件ずつ記録することを検証する。
func TestExecutor_Execute_ConcurrentRecordsIndependently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	sink := &mockSink{}
	e := newTestExecutor(sink)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), "user-1", &Request{
				Method: http.MethodGet,
				URL:    server.URL,
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Execute returned error: %v", err)
	}

	entries := sink.recorded()
	if len(entries) != workers {
		t.Fatalf("recorded %d history entries, want %d", len(entries), workers)
	}
	seen := make(map[string]bool, workers)
	for _, entry := range entries {
		if seen[entry.ID] {
			t.Errorf("duplicate history entry ID %q", entry.ID)
		}
		seen[entry.ID] = true
	}
}

// TestExecutor_Execute_GuardBlocksPrivateAddress は送信先制限が有効な場合に
// ループバックへの実行が検証エラーになることを検証する。
func TestExecutor_Execute_GuardBlocksPrivateAddress(t *testing.T) {
	sink := &mockSink{}
	e := NewExecutor(Config{GuardEnabled: true}, sink, security.NewEgressGuard(), nil, nil)

	_, err := e.Execute(context.Background(), "user-1", &Request{
		Method: http.MethodGet,
		URL:    "http://127.0.0.1:8080/internal",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Execute error = %v, want VALIDATION_ERROR", err)
	}
	if len(sink.entries) != 0 {
		t.Errorf("recorded %d history entries for blocked request, want 0", len(sink.entries))
	}
}

// TestExecutor_ClampTimeout はタイムアウトのクランプ境界を検証する。
func TestExecutor_ClampTimeout(t *testing.T) {
	e := NewExecutor(Config{}, &mockSink{}, nil, nil, nil)

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 30 * time.Second},
		{500 * time.Millisecond, 1 * time.Second},
		{5 * time.Second, 5 * time.Second},
		{10 * time.Minute, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := e.clampTimeout(tt.in); got != tt.want {
			t.Errorf("clampTimeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestAsJSONValue は非JSONレスポンスボディがJSON文字列として格納されることを検証する。
func TestAsJSONValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid JSON object", `{"a":1}`, `{"a":1}`},
		{"plain text", `hello world`, `"hello world"`},
		{"empty body", ``, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(asJSONValue([]byte(tt.in))); got != tt.want {
				t.Errorf("asJSONValue(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
