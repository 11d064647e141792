package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgslot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "group", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msgslot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "group", "method", "path", "status"},
	)
	deviceOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgslot",
			Subsystem: "device",
			Name:      "operations_total",
			Help:      "Device operations by op and result class.",
		},
		[]string{"op", "result"},
	)
	deviceBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgslot",
			Subsystem: "device",
			Name:      "bytes_total",
			Help:      "Message bytes moved by successful reads and writes.",
		},
		[]string{"op"},
	)
	openFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msgslot",
			Subsystem: "device",
			Name:      "open_files",
			Help:      "Currently open device handles.",
		},
	)
	registrySlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msgslot",
			Subsystem: "registry",
			Name:      "slots",
			Help:      "Slots currently registered.",
		},
	)
	registryChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msgslot",
			Subsystem: "registry",
			Name:      "channels",
			Help:      "Channels currently registered across all slots.",
		},
	)
	sessionConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msgslot",
			Subsystem: "session",
			Name:      "connections",
			Help:      "Client connections attached to the daemon.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			deviceOps,
			deviceBytes,
			openFiles,
			registrySlots,
			registryChannels,
			sessionConns,
		)
	})
}

// RecordHTTPRequest counts one admin request. group separates the open probe
// routes from the token-guarded inventory routes.
func RecordHTTPRequest(node, group, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, group, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, group, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDeviceOp counts one device operation. result is "ok" or an error class.
func RecordDeviceOp(op, result string, n int) {
	RegisterMetrics()
	deviceOps.WithLabelValues(op, result).Inc()
	if n > 0 {
		deviceBytes.WithLabelValues(op).Add(float64(n))
	}
}

func AddOpenFiles(delta int) {
	RegisterMetrics()
	openFiles.Add(float64(delta))
}

func SetRegistryCounts(slots, channels int) {
	RegisterMetrics()
	registrySlots.Set(float64(slots))
	registryChannels.Set(float64(channels))
}

func SetSessionConnections(n int64) {
	RegisterMetrics()
	sessionConns.Set(float64(n))
}
