// Package web exposes the read-side HTTP surface: the current snapshot as
// JSON, an SSE stream of snapshot updates, quote estimates, the journaled
// submissions and prometheus metrics. Mutations are not exposed over
// HTTP; they go through the App API where a signing capability is wired.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
	"github.com/dobfi/dobswap/internal/storage/submissions"
)

const snapshotPollInterval = 2 * time.Second

// Service is the slice of the App the server publishes.
type Service interface {
	GetSnapshot() domain.Snapshot
	RefreshNow(ctx context.Context)
	EstimateQuote(ctx context.Context, direction domain.QuoteDirection, amount int64) (domain.SwapQuote, bool)
	Submissions() []submissions.Record
}

// Server exposes HTTP endpoints over a Service.
type Server struct {
	addr     string
	svc      Service
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewServer creates a web server. gatherer may be nil to disable /metrics.
func NewServer(addr string, svc Service, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, svc: svc, gatherer: gatherer, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/snapshot/stream", s.handleSnapshotStream)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/submissions", s.handleSubmissions)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.GetSnapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.svc.RefreshNow(r.Context())
	writeJSON(w, s.svc.GetSnapshot())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	direction := domain.QuoteDirection(r.URL.Query().Get("direction"))
	if direction != domain.QuoteBuy && direction != domain.QuoteSell {
		http.Error(w, "direction must be buy or sell", http.StatusBadRequest)
		return
	}
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		http.Error(w, "amount must be a positive integer in base units", http.StatusBadRequest)
		return
	}

	quote, ok := s.svc.EstimateQuote(r.Context(), direction, amount)
	if !ok {
		// An absent quote means unknown, not zero.
		http.Error(w, "no estimate available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, quote)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Submissions())
}

// handleSnapshotStream pushes the snapshot over SSE whenever its build
// time advances.
func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	var lastBuilt time.Time
	send := func() error {
		snap := s.svc.GetSnapshot()
		if !snap.BuiltAt.After(lastBuilt) {
			return nil
		}
		lastBuilt = snap.BuiltAt
		payload, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-pollTicker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
