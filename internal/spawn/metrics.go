package spawn

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики хранилища. Nil-значение допустимо и ничего не считает.
type Metrics struct {
	sets       prometheus.Counter
	saveErrors prometheus.Counter
	reloads    *prometheus.CounterVec
	cached     prometheus.Gauge
	backups    *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spawn",
			Name:      "sets_total",
			Help:      "Успешные изменения точки спавна.",
		}),
		saveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spawn",
			Name:      "save_errors_total",
			Help:      "Ошибки записи документа ориентаций.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spawn",
			Name:      "reloads_total",
			Help:      "Перезагрузки документа по итоговому статусу.",
		}, []string{"status"}),
		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spawn",
			Name:      "cached_worlds",
			Help:      "Количество миров в кеше ориентаций.",
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spawn",
			Name:      "backups_total",
			Help:      "Резервные копии документа по результату.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.sets, m.saveErrors, m.reloads, m.cached, m.backups)
	return m
}

func (m *Metrics) observeSet(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.saveErrors.Inc()
		return
	}
	m.sets.Inc()
}

func (m *Metrics) observeReload(status LoadStatus) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) setCached(n int) {
	if m == nil {
		return
	}
	m.cached.Set(float64(n))
}

func (m *Metrics) observeBackup(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backups.WithLabelValues(result).Inc()
}
