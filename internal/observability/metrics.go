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
			Namespace: "cardtable",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardtable",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cardtable",
			Subsystem: "server",
			Name:      "connections",
			Help:      "Open player connections.",
		},
	)
	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardtable",
			Subsystem: "server",
			Name:      "packets_total",
			Help:      "Packets handled by the server.",
		},
		[]string{"direction", "type"},
	)
	droppedPeers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardtable",
			Subsystem: "server",
			Name:      "dropped_peers_total",
			Help:      "Links closed because their outbound queue was full.",
		},
	)
	joins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardtable",
			Subsystem: "registry",
			Name:      "joins_total",
			Help:      "Join attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardtable",
			Subsystem: "game",
			Name:      "rejections_total",
			Help:      "Rejected game actions by reason.",
		},
		[]string{"reason"},
	)
	matches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardtable",
			Subsystem: "game",
			Name:      "matches_total",
			Help:      "Match lifecycle events.",
		},
		[]string{"event"},
	)
	matchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cardtable",
			Subsystem: "game",
			Name:      "match_duration_seconds",
			Help:      "Wall time from match start to game end.",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 8),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			connections, packets, droppedPeers,
			joins, rejections, matches, matchDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func ConnectionOpened() {
	RegisterMetrics()
	connections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	connections.Dec()
}

// RecordPacket counts one packet; direction is "in" or "out".
func RecordPacket(direction, packetType string) {
	RegisterMetrics()
	packets.WithLabelValues(direction, packetType).Inc()
}

func RecordDroppedPeer() {
	RegisterMetrics()
	droppedPeers.Inc()
}

// RecordJoin counts a join; kind is "new" or "rejoin".
func RecordJoin(kind, outcome string) {
	RegisterMetrics()
	joins.WithLabelValues(kind, outcome).Inc()
}

func RecordRejection(reason string) {
	RegisterMetrics()
	rejections.WithLabelValues(reason).Inc()
}

func RecordMatchStarted() {
	RegisterMetrics()
	matches.WithLabelValues("started").Inc()
}

func RecordMatchEnded(duration time.Duration) {
	RegisterMetrics()
	matches.WithLabelValues("ended").Inc()
	matchDuration.Observe(duration.Seconds())
}
