package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MonitorCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_monitor_cycles_total",
		Help: "Циклы монитора очереди по результату.",
	}, []string{"result"})

	MonitorCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_monitor_cycle_duration_seconds",
		Help:    "Длительность цикла монитора очереди.",
		Buckets: prometheus.DefBuckets,
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_status_transitions_total",
		Help: "Переходы записей очереди по новому статусу.",
	}, []string{"status"})

	ActiveEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_active_entries",
		Help: "Активные записи по разделам очереди.",
	}, []string{"computer_class"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_notifications_total",
		Help: "Уведомления по каналу, причине и результату.",
	}, []string{"transport", "reason", "result"})
)
