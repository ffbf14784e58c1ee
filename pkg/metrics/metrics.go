package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WsConnections current websocket connections
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	// OnlineUsers users with at least one connection
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Current number of users with at least one live connection",
	})
	// WsEventsTotal inbound client events by event name and result
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_events_total",
		Help: "Total number of inbound websocket events",
	}, []string{"event", "result"})
	// MessagesTotal messages accepted by the fan-out pipeline
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of chat messages sent",
	})
	// BroadcastFramesTotal frames enqueued to connections by event
	BroadcastFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broadcast_frames_total",
		Help: "Total number of frames delivered to connections",
	}, []string{"event"})
	// BroadcastDroppedTotal frames dropped because the connection was stale
	BroadcastDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_dropped_total",
		Help: "Total number of frames dropped for stale connections",
	})
	// HTTPRequestsTotal REST requests
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	// HTTPRequestDuration REST latency
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		OnlineUsers,
		WsEventsTotal,
		MessagesTotal,
		BroadcastFramesTotal,
		BroadcastDroppedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// FiberMiddleware 统计基础请求指标，供 Prometheus 拉取。
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		labels := prometheus.Labels{"method": c.Method(), "path": path, "status": strconv.Itoa(status)}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
		return err
	}
}
