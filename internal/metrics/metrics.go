// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordAuthFailure()
	RecordRateLimited(limiter string)
	RecordInvestmentsImported(count int)
	RecordCipherLegacyFallback()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   prometheus.Histogram
	authFailures   prometheus.Counter
	rateLimited    *prometheus.CounterVec
	imported       prometheus.Counter
	legacyFallback prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneymonitor_http_requests_total",
			Help: "メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moneymonitor_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymonitor_auth_failures_total",
			Help: "サインイン失敗の合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneymonitor_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limiter"}),
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymonitor_investments_imported_total",
			Help: "CSVインポートで保存された投資記録の合計数",
		}),
		legacyFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymonitor_cipher_legacy_fallback_total",
			Help: "復号に失敗し平文として読み出した値の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.authFailures,
		c.rateLimited,
		c.imported,
		c.legacyFallback,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// RecordAuthFailure はサインイン失敗を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limiter string) {
	c.rateLimited.WithLabelValues(limiter).Inc()
}

// RecordInvestmentsImported はインポートされた投資記録数を記録する。
func (c *Collector) RecordInvestmentsImported(count int) {
	c.imported.Add(float64(count))
}

// RecordCipherLegacyFallback は平文フォールバックを記録する。
func (c *Collector) RecordCipherLegacyFallback() {
	c.legacyFallback.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやworkerで使用する。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
func (Nop) RecordAuthFailure()                           {}
func (Nop) RecordRateLimited(string)                     {}
func (Nop) RecordInvestmentsImported(int)                {}
func (Nop) RecordCipherLegacyFallback()                  {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
