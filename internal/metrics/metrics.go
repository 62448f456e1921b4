// Package metrics содержит Prometheus-метрики физики и построения мешей.
//
// Все методы безопасны для nil-получателя: компоненты, созданные без
// метрик (например, в тестах), просто ничего не записывают.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/voxel-engine/internal/logging"
)

const namespace = "voxel"

// Physics - метрики разрешателя коллизий
type Physics struct {
	tickDuration    prometheus.Histogram
	bodies          prometheus.Counter
	blockedAxes     *prometheus.CounterVec
	droppedActions  prometheus.Counter
	recoveredPanics prometheus.Counter
}

// Mesh - метрики построения и фиксации мешей
type Mesh struct {
	buildDuration prometheus.Histogram
	quads         prometheus.Histogram
	committed     prometheus.Counter
	stale         prometheus.Counter
	cache         *prometheus.CounterVec
	pending       prometheus.Gauge
}

// Metrics объединяет метрики движка и реестр, в котором они зарегистрированы
type Metrics struct {
	Physics *Physics
	Mesh    *Mesh

	gatherer prometheus.Gatherer
}

// New создаёт метрики и регистрирует их в reg.
// Для глобального реестра передайте prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	p := &Physics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "physics",
			Name:      "tick_duration_seconds",
			Help:      "Длительность разрешения коллизий за тик.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		bodies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "physics",
			Name:      "bodies_resolved_total",
			Help:      "Число обработанных тел.",
		}),
		blockedAxes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "physics",
			Name:      "blocked_axes_total",
			Help:      "Число осей, движение по которым было остановлено препятствием.",
		}, []string{"axis"}),
		droppedActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "physics",
			Name:      "dropped_actions_total",
			Help:      "Действия, адресованные отсутствующим телам.",
		}),
		recoveredPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "physics",
			Name:      "recovered_panics_total",
			Help:      "Паники при разрешении отдельных тел, перехваченные без остановки тика.",
		}),
	}

	m := &Mesh{
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "build_duration_seconds",
			Help:      "Длительность жадного построения меша сектора.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		quads: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "quads_per_sector",
			Help:      "Количество квадов в построенном меше сектора.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "committed_total",
			Help:      "Меши, зафиксированные в хранилище рендерера.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "stale_dropped_total",
			Help:      "Результаты, отброшенные из-за устаревшей версии.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "cache_lookups_total",
			Help:      "Обращения к кэшу мешей.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "jobs_pending",
			Help:      "Задачи построения мешей, ещё не вернувшие результат.",
		}),
	}

	reg.MustRegister(
		p.tickDuration, p.bodies, p.blockedAxes, p.droppedActions, p.recoveredPanics,
		m.buildDuration, m.quads, m.committed, m.stale, m.cache, m.pending,
	)

	return &Metrics{Physics: p, Mesh: m, gatherer: gatherer}
}

// NewDefault регистрирует метрики в глобальном реестре Prometheus
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// Handler возвращает HTTP-обработчик /metrics для реестра метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartHTTP запускает HTTP-эндпоинт Prometheus на указанном адресе (например, ":2112").
// Метод неблокирующий; возвращает сервер для последующего Shutdown.
func (m *Metrics) StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	return srv
}

// ObserveTick записывает длительность тика и число обработанных тел
func (p *Physics) ObserveTick(d time.Duration, bodies int) {
	if p == nil {
		return
	}
	p.tickDuration.Observe(d.Seconds())
	p.bodies.Add(float64(bodies))
}

// BlockedAxis отмечает остановку движения по оси ("x", "y" или "z")
func (p *Physics) BlockedAxis(axis string) {
	if p == nil {
		return
	}
	p.blockedAxes.WithLabelValues(axis).Inc()
}

// DroppedAction отмечает действие для отсутствующего тела
func (p *Physics) DroppedAction() {
	if p == nil {
		return
	}
	p.droppedActions.Inc()
}

// RecoveredPanic отмечает перехваченную панику при разрешении тела
func (p *Physics) RecoveredPanic() {
	if p == nil {
		return
	}
	p.recoveredPanics.Inc()
}

// ObserveBuild записывает длительность построения и размер меша
func (m *Mesh) ObserveBuild(d time.Duration, quads int) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(d.Seconds())
	m.quads.Observe(float64(quads))
}

// Committed отмечает зафиксированный меш
func (m *Mesh) Committed() {
	if m == nil {
		return
	}
	m.committed.Inc()
}

// Stale отмечает отброшенный устаревший результат
func (m *Mesh) Stale() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

// CacheLookup отмечает попадание или промах кэша мешей
func (m *Mesh) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
	} else {
		m.cache.WithLabelValues("miss").Inc()
	}
}

// SetPending обновляет число незавершённых задач
func (m *Mesh) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
