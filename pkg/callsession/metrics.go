package callsession

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector собирает и экспортирует метрики ядра звонков
//
// Предоставляет Prometheus метрики для внешнего мониторинга и атомарные
// performance counters для внутренней диагностики. Все операции
// thread-safe; с выключенным флагом Enabled каждая операция - no-op.
type MetricsCollector struct {
	// Prometheus метрики
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	callDuration     prometheus.Histogram
	stateTransitions *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	reconnectsTotal  prometheus.Counter
	rosterSize       prometheus.Gauge

	// Performance counters (атомарные для fast path)
	totalCalls      int64
	totalErrors     int64
	totalReconnects int64

	enabled bool
}

// MetricsConfig конфигурация системы метрик
type MetricsConfig struct {
	// Enabled включает/выключает сбор метрик
	Enabled bool

	// Namespace префикс для Prometheus метрик
	Namespace string

	// Subsystem подсистема для Prometheus метрик
	Subsystem string

	// Registerer реестр Prometheus; nil означает реестр по умолчанию
	Registerer prometheus.Registerer
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:   true,
		Namespace: "call",
		Subsystem: "session",
	}
}

// NewMetricsCollector создает сборщик метрик ядра звонков
func NewMetricsCollector(config *MetricsConfig) *MetricsCollector {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	if !config.Enabled {
		return &MetricsCollector{enabled: false}
	}

	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsCollector{
		enabled: true,
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "calls_total",
			Help:      "Общее число начатых звонков по типу",
		}, []string{"kind"}),
		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "calls_active",
			Help:      "Число активных звонков (0 или 1 на процесс)",
		}),
		callDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "call_duration_seconds",
			Help:      "Длительность завершённых звонков",
			Buckets:   []float64{10, 30, 60, 180, 600, 1800, 3600},
		}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "state_transitions_total",
			Help:      "Переходы машины статусов звонка",
		}, []string{"from", "to"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "errors_total",
			Help:      "Ошибки ядра звонков по категориям",
		}, []string{"kind"}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "reconnects_total",
			Help:      "Число эпизодов временной потери связи",
		}),
		rosterSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "roster_size",
			Help:      "Текущее число участников в ростере",
		}),
	}
}

// CallStarted уведомляет о начале попытки звонка
func (mc *MetricsCollector) CallStarted(kind CallKind) {
	if !mc.enabled {
		return
	}
	atomic.AddInt64(&mc.totalCalls, 1)
	mc.callsTotal.WithLabelValues(kind.String()).Inc()
	mc.callsActive.Set(1)
}

// CallEnded уведомляет о завершении звонка с его длительностью в секундах
func (mc *MetricsCollector) CallEnded(durationSec int) {
	if !mc.enabled {
		return
	}
	mc.callsActive.Set(0)
	mc.rosterSize.Set(0)
	if durationSec > 0 {
		mc.callDuration.Observe(float64(durationSec))
	}
}

// CallFailed уведомляет о неудавшейся попытке звонка
func (mc *MetricsCollector) CallFailed(kind ErrorKind) {
	if !mc.enabled {
		return
	}
	mc.callsActive.Set(0)
	mc.Error(kind)
}

// StateTransition фиксирует переход машины статусов
func (mc *MetricsCollector) StateTransition(from, to CallStatus) {
	if !mc.enabled {
		return
	}
	mc.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// Error фиксирует ошибку по категории
func (mc *MetricsCollector) Error(kind ErrorKind) {
	if !mc.enabled {
		return
	}
	atomic.AddInt64(&mc.totalErrors, 1)
	mc.errorsTotal.WithLabelValues(kind.String()).Inc()
}

// Reconnect фиксирует эпизод временной потери связи
func (mc *MetricsCollector) Reconnect() {
	if !mc.enabled {
		return
	}
	atomic.AddInt64(&mc.totalReconnects, 1)
	mc.reconnectsTotal.Inc()
}

// RosterSize обновляет gauge числа участников
func (mc *MetricsCollector) RosterSize(n int) {
	if !mc.enabled {
		return
	}
	mc.rosterSize.Set(float64(n))
}

// TotalCalls возвращает счётчик начатых звонков
func (mc *MetricsCollector) TotalCalls() int64 {
	return atomic.LoadInt64(&mc.totalCalls)
}

// TotalErrors возвращает счётчик ошибок
func (mc *MetricsCollector) TotalErrors() int64 {
	return atomic.LoadInt64(&mc.totalErrors)
}

// TotalReconnects возвращает счётчик реконнектов
func (mc *MetricsCollector) TotalReconnects() int64 {
	return atomic.LoadInt64(&mc.totalReconnects)
}
