// Package metrics содержит Prometheus метрики пайплайна эмбеддингов.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photovault"

// Metrics - набор метрик. Все методы безопасны для nil получателя,
// поэтому компоненты работают и без метрик.
type Metrics struct {
	processed       prometheus.Counter
	failed          prometheus.Counter
	loopsStarted    prometheus.Counter
	pending         prometheus.Gauge
	processing      prometheus.Gauge
	batchDuration   prometheus.Histogram
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	enqueued        prometheus.Counter
}

// New создаёт и регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		processed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_processed_total",
			Help:      "Количество успешно сохранённых эмбеддингов.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_failed_total",
			Help:      "Количество задач эмбеддинга, завершившихся ошибкой.",
		}),
		loopsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_loops_started_total",
			Help:      "Сколько раз запускался цикл обработки очереди.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Количество задач в очереди.",
		}),
		processing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_processing",
			Help:      "1, если цикл обработки очереди активен.",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Время обработки одного батча.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Запросы к сервису эмбеддингов по endpoint и результату.",
		}, []string{"endpoint", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Длительность запросов к сервису эмбеддингов.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Количество задач, поставленных в очередь.",
		}),
	}
}

// JobProcessed учитывает успешную задачу.
func (m *Metrics) JobProcessed() {
	if m == nil {
		return
	}
	m.processed.Inc()
}

// JobFailed учитывает неудачную задачу.
func (m *Metrics) JobFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

// LoopStarted учитывает запуск цикла обработки.
func (m *Metrics) LoopStarted() {
	if m == nil {
		return
	}
	m.loopsStarted.Inc()
}

// SetQueue обновляет состояние очереди.
func (m *Metrics) SetQueue(pending int, processing bool) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if processing {
		m.processing.Set(1)
	} else {
		m.processing.Set(0)
	}
}

// ObserveBatch учитывает длительность батча.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// Enqueued учитывает постановку задачи в очередь.
func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

// ObserveRequest учитывает запрос к сервису эмбеддингов.
func (m *Metrics) ObserveRequest(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Handler возвращает HTTP обработчик /metrics для g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
