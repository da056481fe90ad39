package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

// Pinger reports whether the backing store is reachable. Satisfied by
// storage.SQLiteRepository.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	bills   *services.BillService
	reports *services.ReportService
	store   Pinger

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer wires the JSON routes and middleware, returning a ready-to-run
// server. Writes are rate limited per owner.
func NewServer(addr string, bills *services.BillService, reports *services.ReportService, store Pinger, logger *applog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		bills:   bills,
		reports: reports,
		store:   store,
		limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	tracer := trace.NewMiddleware(logger)
	s.Handler = tracer.Middleware(mux)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /v1/categories", s.handleCategories)
	mux.HandleFunc("POST /v1/bills", s.withWriteLimit(s.handleRecordBill))
	mux.HandleFunc("POST /v1/bills/batch", s.withWriteLimit(s.handleRecordBatch))
	mux.HandleFunc("POST /v1/investments", s.withWriteLimit(s.handleRecordInvestment))

	mux.HandleFunc("GET /v1/reports/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/reports/compare", s.handleCompare)
	mux.HandleFunc("GET /v1/reports/timeline", s.handleTimeline)
	mux.HandleFunc("GET /v1/reports/category-detail", s.handleCategoryDetail)

	return s
}

// withWriteLimit rejects writes from owners over their per-minute budget.
func (s *Server) withWriteLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-ID")
		if owner != "" && !s.limiter.Allow(owner) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

// Shutdown stops the limiter's cleanup goroutine and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
