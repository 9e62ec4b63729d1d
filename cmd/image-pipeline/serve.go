package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/render"
	"github.com/ironsheep/image-pipeline/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP requests on stdin/stdout",
	Long: `Serve runs the MCP server over stdin and stdout. Logs go to stderr.

When metrics.addr is set, Prometheus metrics for the tile cache and the
render workers are exposed at http://<addr>/metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			cache.NewCollector(st.tiles),
		)

		coord := render.New(st.tiles, render.Options{
			Workers: st.cfg.Render.Workers,
			Metrics: render.NewMetrics(reg),
			Logger:  st.log.Named("render"),
		})
		defer coord.Close()

		if addr := st.cfg.Metrics.Addr; addr != "" {
			srv := metricsServer(addr, reg)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					st.log.Error("metrics server stopped", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			st.log.Info("serving metrics", zap.String("addr", addr))
		}

		srv := server.New(server.Options{
			Registry:    st.registry,
			Sources:     st.sources,
			Cache:       st.tiles,
			Coordinator: coord,
			MaxInsert:   st.cfg.Pipeline.MaxInsert,
			Logger:      st.log.Named("server"),
		})
		defer srv.Close()

		st.log.Info("image pipeline server starting",
			zap.String("version", Version),
			zap.String("commit", GitCommit),
			zap.Int("workers", coord.Workers()))
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func metricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
