package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"inspectpay/auth"
	"inspectpay/inspection"
	"inspectpay/inspector"
	"inspectpay/logging"
	"inspectpay/lot"
)

type lotService interface {
	Generate(ctx context.Context, params lot.GenerateParams) (lot.Lot, error)
	MarkPaid(ctx context.Context, params lot.MarkPaidParams) (lot.Lot, error)
	Cancel(ctx context.Context, params lot.CancelParams) (lot.Lot, error)
	Delete(ctx context.Context, params lot.DeleteParams) error
	GetDetail(ctx context.Context, lotID string) (lot.Detail, error)
	List(ctx context.Context, filter lot.ListFilter) (lot.ListResult, error)
	SummarizeByStatus(ctx context.Context, filter lot.SummaryFilter) (lot.Summary, error)
	ListEligible(ctx context.Context, filter inspection.EligibilityFilter) ([]inspection.Inspection, error)
}

type workloadService interface {
	ListWorkloads(ctx context.Context, period inspector.Period) ([]inspector.Workload, error)
}

type tokenVerifier interface {
	VerifyToken(token string) (auth.Identity, error)
}

// Server holds the HTTP dependencies. Zero-valued optional fields disable
// the matching routes' extras (metrics, health probe).
type Server struct {
	lots      lotService
	workloads workloadService
	verifier  tokenVerifier
	logger    logrus.FieldLogger
	validate  *validator.Validate
	metrics   http.Handler
	health    func(ctx context.Context) error
	now       func() time.Time
}

func (s *Server) log() logrus.FieldLogger {
	if s.logger == nil {
		return logging.Discard()
	}
	return s.logger
}

func (s *Server) validation() *validator.Validate {
	if s.validate == nil {
		s.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return s.validate
}

func (s *Server) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Server) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/lots", func(r chi.Router) {
			r.Get("/", s.handleListLots)
			r.Get("/summary", s.handleSummary)
			r.Get("/{id}", s.handleGetLot)
			r.Get("/{id}/export.xlsx", s.handleExportLot)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/", s.handleGenerateLot)
				r.Post("/{id}/pay", s.handlePayLot)
				r.Post("/{id}/cancel", s.handleCancelLot)
				r.Delete("/{id}", s.handleDeleteLot)
			})
		})
		r.Get("/inspections/eligible", s.handleEligibleInspections)
		r.Get("/inspectors/eligible", s.handleEligibleInspectors)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			logging.Error(s.log(), "api", "handleHealth", "health probe", nil, err)
			_ = writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
