// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExecutionCollector はプロキシ実行メトリクス収集のインターフェース。
// サービス層から利用する。
type ExecutionCollector interface {
	RecordExecuteResponse(statusCode int)
	RecordExecuteFailure(code string)
	RecordExecuteLatency(duration time.Duration)
	RecordHistoryRecorded()
	RecordAuthFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	executeResponse *prometheus.CounterVec
	executeFailure  *prometheus.CounterVec
	executeLatency  prometheus.Histogram
	historyRecorded prometheus.Counter
	authFailure     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		executeResponse: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqbench_execute_response_total",
			Help: "HTTPステータスコード別のプロキシ実行レスポンス数",
		}, []string{"status_code"}),
		executeFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqbench_execute_failure_total",
			Help: "エラー種別ごとのトランスポート層エラー数",
		}, []string{"code"}),
		executeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reqbench_execute_latency_seconds",
			Help:    "プロキシ実行のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		historyRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqbench_history_recorded_total",
			Help: "記録された実行履歴の合計数",
		}),
		authFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqbench_auth_failure_total",
			Help: "アクセストークン検証失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.executeResponse,
		c.executeFailure,
		c.executeLatency,
		c.historyRecorded,
		c.authFailure,
	)

	return c
}

// RecordExecuteResponse はHTTPレスポンスの受信を記録する。
// 4xx/5xxも実行成功として扱われるため、失敗カウンタとは独立している。
func (c *Collector) RecordExecuteResponse(statusCode int) {
	c.executeResponse.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordExecuteFailure はトランスポート層エラーを記録する。
func (c *Collector) RecordExecuteFailure(code string) {
	c.executeFailure.WithLabelValues(code).Inc()
}

// RecordExecuteLatency はプロキシ実行のレイテンシを記録する。
func (c *Collector) RecordExecuteLatency(duration time.Duration) {
	c.executeLatency.Observe(duration.Seconds())
}

// RecordHistoryRecorded は履歴記録を記録する。
func (c *Collector) RecordHistoryRecorded() {
	c.historyRecorded.Inc()
}

// RecordAuthFailure はアクセストークン検証失敗を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFailure.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ ExecutionCollector = (*Collector)(nil)
