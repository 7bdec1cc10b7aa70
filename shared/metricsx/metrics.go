package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events handed to the broker, by topic and result.",
		},
		[]string{"topic", "event_type", "result"},
	)
	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_consumed_total",
			Help: "Consumed events by topic and final disposition.",
		},
		[]string{"topic", "result"},
	)
	consumeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_handler_retries_total",
			Help: "Handler retry attempts by topic.",
		},
		[]string{"topic"},
	)
	dlqMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letter_messages_total",
			Help: "Messages parked on a dead-letter topic.",
		},
		[]string{"topic"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache lookups and writes by cache name and outcome.",
		},
		[]string{"cache", "op"},
	)
	notifySends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sends_total",
			Help: "Notification sender invocations by event type and result.",
		},
		[]string{"event_type", "result"},
	)
)

func Register() {
	prometheus.MustRegister(httpRequests, httpLatency, eventsPublished, eventsConsumed, consumeRetries, dlqMessages, kafkaConsumerLag, cacheOps, notifySends)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func IncEventPublished(topic string, eventType string, result string) {
	eventsPublished.WithLabelValues(topic, eventType, result).Inc()
}

func IncEventConsumed(topic string, result string) {
	eventsConsumed.WithLabelValues(topic, result).Inc()
}

func IncConsumeRetry(topic string) {
	consumeRetries.WithLabelValues(topic).Inc()
}

func IncDeadLetter(topic string) {
	dlqMessages.WithLabelValues(topic).Inc()
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncCacheOp(cache string, op string) {
	cacheOps.WithLabelValues(cache, op).Inc()
}

func IncNotifySend(eventType string, result string) {
	notifySends.WithLabelValues(eventType, result).Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
