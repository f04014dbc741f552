package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes signaling metrics. Construct once per
// process with the default registerer; tests pass a fresh registry.
type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge

	messagesRelayed    *prometheus.CounterVec
	roomFullRejections prometheus.Counter
	evictionsTotal     prometheus.Counter
	evictionsCanceled  prometheus.Counter

	speechRequestDuration *prometheus.HistogramVec
	speechFailures        *prometheus.CounterVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parley_connections_active",
			Help: "Number of live websocket connections",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parley_rooms_active",
			Help: "Number of rooms currently in the room table",
		}),

		messagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_relayed_total",
			Help: "Signaling messages relayed to room members, by event",
		}, []string{"event"}),

		roomFullRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_room_full_rejections_total",
			Help: "Join attempts rejected because the room was full",
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_room_evictions_total",
			Help: "Rooms deleted after the reconnection grace period expired",
		}),

		evictionsCanceled: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_room_evictions_canceled_total",
			Help: "Pending evictions canceled by a reconnection",
		}),

		speechRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_speech_request_duration_seconds",
			Help:    "Duration of external speech provider calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),

		speechFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_speech_failures_total",
			Help: "Failed external speech provider calls, by operation",
		}, []string{"operation"}),
	}
}

func (c *PrometheusCollector) ConnectionOpened() { c.connectionsActive.Inc() }
func (c *PrometheusCollector) ConnectionClosed() { c.connectionsActive.Dec() }

func (c *PrometheusCollector) SetRoomCount(n int) { c.roomsActive.Set(float64(n)) }

func (c *PrometheusCollector) MessageRelayed(event string) {
	c.messagesRelayed.WithLabelValues(event).Inc()
}

func (c *PrometheusCollector) RoomFullRejected()  { c.roomFullRejections.Inc() }
func (c *PrometheusCollector) RoomEvicted()       { c.evictionsTotal.Inc() }
func (c *PrometheusCollector) EvictionCanceled()  { c.evictionsCanceled.Inc() }

func (c *PrometheusCollector) ObserveSpeechRequest(operation string, d time.Duration, err error) {
	c.speechRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		c.speechFailures.WithLabelValues(operation).Inc()
	}
}
