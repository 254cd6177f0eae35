// Package api exposes the operations HTTP surface: health, metrics and the
// read models staff use to follow demandes and decisions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Store is the read side the server queries.
type Store interface {
	Modifications(ctx context.Context, demandeID int64) ([]model.ModificationEtatDemande, error)
	Decision(ctx context.Context, id int64) (*model.Decision, error)
	DecisionStatut(ctx context.Context, id int64) (model.EtatDecision, error)
	Fichier(ctx context.Context, id int64) (*model.Fichier, error)
	DeadLetters(ctx context.Context, limit int) ([]model.DeadLetter, error)
}

// Presigner issues temporary download links for stored objects.
type Presigner interface {
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Server exposes the operations endpoints.
type Server struct {
	cfg      *config.Config
	store    Store
	files    Presigner
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	handler  http.Handler
	once     sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, store Store, files Presigner, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, store: store, files: files, gatherer: gatherer, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", s.handleHealth)
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		mux.HandleFunc("GET /demandes/{id}/transitions", s.handleTransitions)
		mux.HandleFunc("GET /decisions/{id}/statut", s.handleDecisionStatut)
		mux.HandleFunc("GET /decisions/{id}/document", s.handleDecisionDocument)
		mux.HandleFunc("GET /dead-letters", s.handleDeadLetters)
		s.handler = s.loggingMiddleware(mux)
	})
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("ops server listening", slog.String("addr", s.cfg.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	mods, err := s.store.Modifications(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if mods == nil {
		mods = []model.ModificationEtatDemande{}
	}
	respondJSON(w, http.StatusOK, mods)
}

func (s *Server) handleDecisionStatut(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	etat, err := s.store.DecisionStatut(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "etat": etat})
}

func (s *Server) handleDecisionDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.store.Decision(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if d.FichierID == nil {
		http.Error(w, "decision not archived", http.StatusNotFound)
		return
	}
	f, err := s.store.Fichier(r.Context(), *d.FichierID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	url, err := s.files.PresignURL(r.Context(), f.ObjectKey, s.cfg.SignedTTL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url, "nom": f.Nom})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	dls, err := s.store.DeadLetters(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dls)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), logging.Err(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.DebugContext(r.Context(), "request",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Duration("took", time.Since(start)))
	})
}
