package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/domain"
	apimw "github.com/hamed0406/linkmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/linkmonitor/internal/repo"
)

// Store is the read surface the API needs.
type Store interface {
	repo.TargetStore
	repo.HistoryReader
	GetTargetStatus(ctx context.Context, name string) (domain.TargetStatus, error)
	GetConnectionStats(ctx context.Context, name string, window time.Duration) (domain.ConnectionStats, error)
	GetStabilityMetrics(ctx context.Context, name string, window time.Duration) (domain.StabilityReport, error)
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Logger      *zap.Logger
	Store       Store
	Metrics     http.Handler
	StatsWindow time.Duration
	Now         func() time.Time
}

func NewServer(l *zap.Logger, s Store, metrics http.Handler, window time.Duration) *Server {
	return &Server{Logger: l, Store: s, Metrics: metrics, StatsWindow: window, Now: time.Now}
}

// Limits configures the per-IP rate limits, in requests per minute.
type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

func (s *Server) Router(keys apimw.Keys, origins []string, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(lim.PublicRPM, lim.PublicBurst))
			r.Use(apimw.RequireAny(keys))

			r.Get("/targets", s.handleListTargets)
			r.Get("/status", s.handleLatest)
			r.Route("/targets/{name}", func(r chi.Router) {
				r.Get("/status", s.handleStatus)
				r.Get("/sessions", s.handleSessions)
				r.Get("/events", s.handleEvents)
				r.Get("/stats", s.handleStats)
				r.Get("/stability", s.handleStability)
				r.Get("/snapshots", s.handleSnapshots)
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(lim.AdminRPM, lim.AdminBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/admin/prune", s.handlePrune)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.Logger.Error("health_check_failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Store.ListTargets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sts, err := s.Store.LatestStatuses(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sts)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.target(r.Context(), name); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.Store.GetTargetStatus(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	out, err := s.Store.ListSessions(r.Context(), chi.URLParam(r, "name"), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	out, err := s.Store.ListEvents(r.Context(), chi.URLParam(r, "name"), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	out, err := s.Store.ListSnapshots(r.Context(), chi.URLParam(r, "name"), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window, ok := s.parseWindow(w, r)
	if !ok {
		return
	}
	out, err := s.Store.GetConnectionStats(r.Context(), chi.URLParam(r, "name"), window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	window, ok := s.parseWindow(w, r)
	if !ok {
		return
	}
	out, err := s.Store.GetStabilityMetrics(r.Context(), chi.URLParam(r, "name"), window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	days, ok := boundedParam(w, r, "days", maxWindowDays)
	if !ok {
		return
	}
	if days == 0 {
		writeError(w, http.StatusBadRequest, "days is required")
		return
	}
	before := s.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := s.Store.PruneSnapshots(r.Context(), before)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.Logger.Info("snapshots_pruned", zap.Int64("deleted", n), zap.Time("before", before))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n, "before": before})
}

func (s *Server) target(ctx context.Context, name string) (domain.Target, error) {
	ts, err := s.Store.ListTargets(ctx)
	if err != nil {
		return domain.Target{}, err
	}
	for _, t := range ts {
		if t.Name == name {
			return t, nil
		}
	}
	return domain.Target{}, domain.ErrTargetNotFound
}

// Windows longer than ten years would overflow time.Duration arithmetic
// further down.
const (
	maxWindowDays  = 3650
	maxWindowHours = maxWindowDays * 24
)

// parseWindow reads hours= or days=; hours wins when both are set.
func (s *Server) parseWindow(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	hours, ok := boundedParam(w, r, "hours", maxWindowHours)
	if !ok {
		return 0, false
	}
	if hours > 0 {
		return time.Duration(hours) * time.Hour, true
	}
	days, ok := boundedParam(w, r, "days", maxWindowDays)
	if !ok {
		return 0, false
	}
	if days > 0 {
		return time.Duration(days) * 24 * time.Hour, true
	}
	return s.StatsWindow, true
}

func parsePage(w http.ResponseWriter, r *http.Request) (domain.Page, bool) {
	page, ok := positiveParam(w, r, "page")
	if !ok {
		return domain.Page{}, false
	}
	per, ok := positiveParam(w, r, "per_page")
	if !ok {
		return domain.Page{}, false
	}
	return domain.Page{Page: page, PerPage: per}.Normalize(), true
}

// positiveParam returns 0 when the parameter is absent.
func positiveParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}

func boundedParam(w http.ResponseWriter, r *http.Request, key string, max int) (int, bool) {
	n, ok := positiveParam(w, r, key)
	if ok && n > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: at most %d", key, max))
		return 0, false
	}
	return n, ok
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTargetNotFound), errors.Is(err, domain.ErrNoHistory):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.Logger.Error("api_error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("role", string(apimw.RoleFrom(r.Context()))),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
