// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"entitygraph/internal/logger"
)

// Partition outcomes.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

var (
	RawEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitygraph_raw_events_total",
			Help: "Raw sensor events loaded, by domain.",
		},
		[]string{"domain"},
	)

	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitygraph_rows_written_total",
			Help: "Entity rows written, by table.",
		},
		[]string{"table"},
	)

	Partitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitygraph_partitions_total",
			Help: "Partitions processed, by outcome.",
		},
		[]string{"status"},
	)

	AncestryCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitygraph_ancestry_cycles_total",
		Help: "Ancestry walks stopped by a parent cycle.",
	})
)

// Server serves /metrics until shut down.
type Server struct {
	srv *http.Server
}

// Serve starts a /metrics endpoint on addr in the background.
func Serve(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
	return s
}

// Shutdown stops the endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
