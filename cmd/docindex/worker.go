package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/runtime"
	"github.com/custodia-labs/docindex/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the task worker, scheduler and metrics endpoint",
	Long: `Runs worker goroutines that process queued indexing tasks.

When worker.scheduler_enabled is set, the scheduler enqueues stale-document
recovery and task purging on their configured intervals. When metrics.addr
is set, Prometheus metrics are served on /metrics and worker health on /healthz.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		if err := svc.EnsureSchedules(ctx); err != nil {
			return err
		}

		w := svc.NewWorker()

		var srv *http.Server
		if addr := svc.Config.Metrics.Addr; addr != "" {
			srv = newMetricsServer(addr, svc, w)
			go func() {
				svc.Logger.Info("metrics endpoint listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					svc.Logger.Error("metrics server failed", "error", err)
				}
			}()
		}

		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		svc.Logger.Info("shutdown signal received, stopping worker")
		w.Stop()

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})
}

func newMetricsServer(addr string, svc *runtime.Services, w *worker.Worker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		health := w.Health(r.Context())
		vectors := svc.Vectors.GetConnectionStatus(r.Context())

		status := http.StatusOK
		if !health.QueueHealth || !vectors.Connected {
			status = http.StatusServiceUnavailable
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"worker":  health,
			"vectors": vectors,
		})
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
