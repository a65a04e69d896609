// Package observability serves metrics, health and the live presenter state
// over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"moodmic/log"
)

// StateFunc returns a JSON-serialisable snapshot of the running session.
type StateFunc func() any

type Server struct {
	server *http.Server
	addr   string
	logger zerolog.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, state StateFunc) *Server {
	s := &Server{addr: addr, logger: log.Component("observability")}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      Router(gatherer, state),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router builds the handler tree; exposed for tests.
func Router(gatherer prometheus.Gatherer, state StateFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		if state == nil {
			http.Error(w, "no session", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(state())
	})
	return r
}

// Start binds the listener synchronously so address errors surface to the
// caller, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("observability server listening")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("observability server error")
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("observability server shutting down")
	return s.server.Shutdown(ctx)
}
