package http

import (
	"net/http"

	"github.com/dreschagin/install-monitor/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/install-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/install-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/install-monitor/pkg/config"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

// Handlers groups the HTTP handlers. Alerts and WebSocket may be nil when their
// integrations are disabled; the routes are then not registered.
type Handlers struct {
	Health    *handler.HealthHandler
	Monitors  *handler.MonitorHandler
	Alerts    *handler.AlertWebhookHandler
	WebSocket *handler.WebSocketHandler
}

// Router настраивает маршруты приложения
type Router struct {
	mux       *http.ServeMux
	handlers  Handlers
	metrics   *metrics.Metrics
	security  config.SecurityConfig
	rateLimit config.RateLimitConfig
	logger    *logger.Logger
}

// NewRouter создает новый router; m may be nil when Prometheus is disabled.
func NewRouter(
	handlers Handlers,
	m *metrics.Metrics,
	security config.SecurityConfig,
	rateLimit config.RateLimitConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:       http.NewServeMux(),
		handlers:  handlers,
		metrics:   m,
		security:  security,
		rateLimit: rateLimit,
		logger:    logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Health endpoints are unauthenticated for probes.
	rt.mux.HandleFunc("GET /healthz", rt.handlers.Health.Healthz)
	rt.mux.HandleFunc("GET /readyz", rt.handlers.Health.Readyz)

	authConfig := rt.authConfig()
	authMiddleware := middleware.Auth(authConfig, rt.logger)

	if rt.metrics != nil {
		rt.mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	api := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(middleware.Compression(h))
	}

	rt.mux.Handle("GET /api/v1/monitors", api(rt.handlers.Monitors.ListMonitors))
	rt.mux.Handle("POST /api/v1/monitors/{name}/run", api(rt.handlers.Monitors.RunMonitor))

	if rt.handlers.Alerts != nil {
		var onDrop func()
		if rt.metrics != nil {
			onDrop = rt.metrics.RateLimitDropped.Inc
		}
		limiter := middleware.NewIPRateLimiter(rt.rateLimit.RPS, rt.rateLimit.Burst)
		rt.mux.Handle("POST /api/v1/alerts/grafana",
			middleware.RateLimit(limiter, onDrop)(api(rt.handlers.Alerts.HandleGrafanaAlert)))
	}

	if rt.handlers.WebSocket != nil {
		// The websocket handler authenticates itself so that ?token= works for browsers.
		rt.mux.HandleFunc("GET /ws/probes", rt.handlers.WebSocket.HandleConnection)
	}

	// Применяем middleware
	var handler http.Handler = rt.mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}

func (rt *Router) authConfig() middleware.AuthConfig {
	cfg := middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}
	if rt.metrics != nil {
		cfg.OnReject = rt.metrics.AuthFailures.Inc
	}
	return cfg
}

// AuthConfig exposes the auth settings the websocket handler needs.
func AuthConfig(security config.SecurityConfig, m *metrics.Metrics) middleware.AuthConfig {
	rt := Router{security: security, metrics: m}
	return rt.authConfig()
}
