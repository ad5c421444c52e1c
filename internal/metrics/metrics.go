// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/session"
)

// 結果ラベルの値。
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
// session.Observerとappwrite.Observerを満たす。
type Collector struct {
	authEvents   *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	onboarded    *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	activeVisits prometheus.Gauge
	providerCall *prometheus.HistogramVec
	httpStatus   *prometheus.CounterVec
}

var _ session.Observer = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clip_auth_events_total",
			Help: "認証イベントの合計数",
		}, []string{"event", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clip_session_transitions_total",
			Help: "セッション状態遷移の合計数",
		}, []string{"from", "to"}),
		onboarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clip_onboarding_completed_total",
			Help: "役割別のオンボーディング完了数",
		}, []string{"role"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clip_persistence_skipped_total",
			Help: "保存先未設定のためスキップされた保存の数",
		}, []string{"kind"}),
		activeVisits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clip_active_visits",
			Help: "保持中の訪問セッション数",
		}),
		providerCall: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clip_provider_request_duration_seconds",
			Help:    "Appwrite APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clip_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authEvents,
		c.transitions,
		c.onboarded,
		c.skipped,
		c.activeVisits,
		c.providerCall,
		c.httpStatus,
	)

	return c
}

// ObserveAuthEvent は認証イベントを記録する。
func (c *Collector) ObserveAuthEvent(event string, err error) {
	c.authEvents.WithLabelValues(event, outcome(err)).Inc()
}

// ObserveTransition はセッション状態の遷移を記録する。
func (c *Collector) ObserveTransition(from, to session.State) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveOnboardingCompleted はオンボーディング完了を記録する。
func (c *Collector) ObserveOnboardingCompleted(role model.Role) {
	c.onboarded.WithLabelValues(string(role)).Inc()
}

// ObservePersistenceSkipped は保存のスキップを記録する。
func (c *Collector) ObservePersistenceSkipped(kind string) {
	c.skipped.WithLabelValues(kind).Inc()
}

// SetActiveVisits は保持中の訪問数を設定する。
func (c *Collector) SetActiveVisits(n int) {
	c.activeVisits.Set(float64(n))
}

// ObserveProviderCall はAppwrite APIリクエストのレイテンシを記録する。
func (c *Collector) ObserveProviderCall(op string, d time.Duration, err error) {
	c.providerCall.WithLabelValues(op, outcome(err)).Observe(d.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
