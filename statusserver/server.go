// Package statusserver exposes the progress and the metrics of a run over
// HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/task"
)

const progressTimeout = time.Second

// ProgressSource reports the counters of the current run.
type ProgressSource interface {
	Progress(ctx context.Context) (task.Counts, error)
}

type progressResponse struct {
	task.Counts
	Done bool `json:"done"`
}

// NewHandler returns the router serving /metrics, /progress and /healthz.
func NewHandler(src ProgressSource, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(logRequests(logger))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
		defer cancel()

		counts, err := src.Progress(ctx)
		if err != nil {
			logger.Warn("progress unavailable", zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(progressResponse{Counts: counts, Done: counts.Done()})
	})
	return r
}

func logRequests(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("code", m.Code),
				zap.Int64("written", m.Written),
				zap.Duration("duration", m.Duration),
			)
		})
	}
}

// Server runs the status handler in the background.
type Server struct {
	srv  *http.Server
	addr net.Addr
	log  *zap.Logger
	done chan struct{}
}

// Start listens on addr and serves h until Shutdown.
func Start(addr string, h http.Handler, logger *zap.Logger) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv:  &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
		addr: l.Addr(),
		log:  logger,
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", zap.Error(err))
		}
	}()
	logger.Info("status server listening", zap.Stringer("addr", s.addr))
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
