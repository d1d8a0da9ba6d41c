// Package ingress is the HTTP front door: it authenticates webhook
// deliveries by HMAC signature, parses source-specific payloads into
// incident.Alert, and responds with the contract spec.md §4.1 requires
// (2xx accepted, 400 malformed, 401 bad signature, 429 backpressure).
package ingress

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// Intake is what the ingress server hands every accepted Alert to. The
// orchestrator implements this; ingress knows nothing about dedup, state,
// or analysis.
type Intake interface {
	Accept(alert incident.Alert) error
}

// Server is the webhook-facing HTTP frontend.
type Server struct {
	Router  *chi.Mux
	logger  *zap.Logger
	intake  Intake
	started time.Time
}

// NewServer builds a Server with PagerDuty and CloudWatch webhook routes
// mounted under /webhook, plus /healthz.
func NewServer(intake Intake, pagerDutySecret, cloudWatchSecret []byte, corsOrigins []string, logger *zap.Logger) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		logger:  logger,
		intake:  intake,
		started: time.Now(),
	}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(zapRequestLogger(logger))
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-PagerDuty-Signature", "X-Amz-Sns-Message-Type"},
		MaxAge:         300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Handle("/metrics", promhttp.Handler())

	s.Router.Route("/webhook", func(r chi.Router) {
		r.Post("/pagerduty", s.handlePagerDuty(pagerDutySecret))
		r.Post("/cloudwatch", s.handleCloudWatch(cloudWatchSecret))
	})

	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime_secs": int(time.Since(s.started).Seconds()),
	})
}
