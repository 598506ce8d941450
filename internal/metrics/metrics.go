// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// カート、ローンチ、外部API連携の各層から利用する。
type MetricsCollector interface {
	RecordCartMutation(op string)
	RecordVendorCall(vendor, operation string, success bool, duration time.Duration)
	RecordCacheResult(hit bool)
	RecordPhaseTransition(from, to string)
	RecordSignup(service string)
	RecordHTTPStatus(statusCode int)
	RecordProductsSynced(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cartMutations    *prometheus.CounterVec
	vendorCalls      *prometheus.CounterVec
	vendorLatency    *prometheus.HistogramVec
	cacheResults     *prometheus.CounterVec
	phaseTransitions *prometheus.CounterVec
	signups          *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	productsSynced   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "操作種別ごとのカート変更数",
		}, []string{"op"}),
		vendorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_vendor_calls_total",
			Help: "外部API呼び出しの合計数",
		}, []string{"vendor", "operation", "outcome"}),
		vendorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_vendor_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"vendor"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_catalog_cache_total",
			Help: "商品キャッシュのヒット・ミス数",
		}, []string{"result"}),
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_launch_phase_transitions_total",
			Help: "ローンチフェーズの遷移数",
		}, []string{"from", "to"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_signups_total",
			Help: "保存先ごとのメール登録数",
		}, []string{"service"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		productsSynced: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_products_synced",
			Help: "直近の同期で取得した商品数",
		}),
	}

	reg.MustRegister(
		c.cartMutations,
		c.vendorCalls,
		c.vendorLatency,
		c.cacheResults,
		c.phaseTransitions,
		c.signups,
		c.httpStatus,
		c.productsSynced,
	)

	return c
}

// RecordCartMutation はカート変更を記録する。
func (c *Collector) RecordCartMutation(op string) {
	c.cartMutations.WithLabelValues(op).Inc()
}

// RecordVendorCall は外部API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordVendorCall(vendor, operation string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.vendorCalls.WithLabelValues(vendor, operation, outcome).Inc()
	c.vendorLatency.WithLabelValues(vendor).Observe(duration.Seconds())
}

// RecordCacheResult はキャッシュのヒット・ミスを記録する。
func (c *Collector) RecordCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheResults.WithLabelValues(result).Inc()
}

// RecordPhaseTransition はローンチフェーズの遷移を記録する。
func (c *Collector) RecordPhaseTransition(from, to string) {
	c.phaseTransitions.WithLabelValues(from, to).Inc()
}

// RecordSignup はメール登録を記録する。
func (c *Collector) RecordSignup(service string) {
	c.signups.WithLabelValues(service).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProductsSynced は同期した商品数を記録する。
func (c *Collector) RecordProductsSynced(count int) {
	c.productsSynced.Set(float64(count))
}

// RegisterRuntime はGoランタイムとプロセスのメトリクスをregに登録する。
func RegisterRuntime(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集エラーは部分的なレスポンスとして返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
