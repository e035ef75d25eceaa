package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/output"
	"github.com/sdpower/ccmonitor-go/internal/snapshot"
)

// Server exposes /metrics, /snapshot and /healthz.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	Addr     string
	Cell     *snapshot.Cell
	Gatherer prometheus.Gatherer
	Location *time.Location // zone for lastUpdate in /snapshot
	Logger   zerolog.Logger
}

// NewServer builds the server without starting it.
func NewServer(opts ServerOptions) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: opts.Logger,
	}
}

// NewRouter returns the chi router used by Server.
func NewRouter(opts ServerOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/snapshot", snapshotHandler(opts.Cell, opts.Location, opts.Logger))
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return r
}

func snapshotHandler(cell *snapshot.Cell, loc *time.Location, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := cell.Load()
		if snap == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		data, err := output.MarshalDocument(snap, loc)
		if err != nil {
			logger.Error().Err(err).Msg("encode snapshot")
			http.Error(w, "encode snapshot", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("metrics server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
