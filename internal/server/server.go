package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hray3182/MindIt/internal/metrics"
	"github.com/hray3182/MindIt/internal/scheduler"
	"go.uber.org/zap"
)

const serviceName = "mindit"

type Sweeper interface {
	RunSweep(ctx context.Context) (*scheduler.Report, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Webhook is the inbound WhatsApp endpoint pair.
type Webhook interface {
	Verify(w http.ResponseWriter, r *http.Request)
	Receive(w http.ResponseWriter, r *http.Request)
}

type Config struct {
	CronSecret      string
	WhatsAppEnabled bool
	TelegramEnabled bool
}

type Server struct {
	cfg     Config
	webhook Webhook
	sweeper Sweeper
	store   Pinger
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// New builds the HTTP surface. webhook may be nil when WhatsApp is not
// configured.
func New(cfg Config, webhook Webhook, sweeper Sweeper, store Pinger, m *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		webhook: webhook,
		sweeper: sweeper,
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))
	if s.metrics != nil {
		router.Use(instrument(s.metrics))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", s.health)
	if s.webhook != nil {
		router.Get("/webhook", s.webhook.Verify)
		router.Post("/webhook", s.webhook.Receive)
	}
	router.Route("/cron", func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Get("/sweep", s.sweep)
		r.Post("/sweep", s.sweep)
	})
	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return router
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeper.RunSweep(r.Context())
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: s.now().UTC(),
		Checks: map[string]string{
			"store":    "ok",
			"whatsapp": configured(s.cfg.WhatsAppEnabled),
			"telegram": configured(s.cfg.TelegramEnabled),
		},
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check: store unreachable", zap.Error(err))
		resp.Status = "degraded"
		resp.Checks["store"] = "error"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, resp)
}

func configured(enabled bool) string {
	if enabled {
		return "configured"
	}
	return "not_configured"
}

// requireCronSecret accepts the secret as ?secret= or a bearer token. An
// empty CronSecret leaves the endpoint open.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CronSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		given := r.URL.Query().Get("secret")
		if auth := r.Header.Get("Authorization"); given == "" && strings.HasPrefix(auth, "Bearer ") {
			given = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.CronSecret)) != 1 {
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
				zap.String("remoteAddr", r.RemoteAddr),
			)
		})
	}
}

func instrument(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, route, strconv.Itoa(status), time.Since(start))
		})
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    code,
	})
}
