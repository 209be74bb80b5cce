package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var ChildrenSpawned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tempvoice_children_spawned_total",
	Help: "Number of child voice channels created",
})

var ActiveChildren = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tempvoice_active_children",
	Help: "Child voice channels currently recorded",
})

var ChildrenReaped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tempvoice_children_reaped_total",
	Help: "Number of child voice channels deleted",
}, []string{"reason"})

var SpawnFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tempvoice_spawn_failures_total",
	Help: "Child channel spawns that failed, by stage",
}, []string{"stage"})

var InheritanceClaims = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tempvoice_inheritance_claims_total",
	Help: "Inheritance claim attempts by result",
}, []string{"result"})

var ControlActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tempvoice_control_actions_total",
	Help: "Control panel actions by action and result",
}, []string{"action", "result"})

var OrphanRowsRemoved = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tempvoice_orphan_rows_removed_total",
	Help: "Store rows dropped because their channel no longer exists",
})

var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "tempvoice_sweep_duration_seconds",
	Help:    "Duration of a lifecycle sweep over all guilds",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

// Result labels a counter with ok/error.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Infow("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server stopped", "error", err)
		}
	}()
}
