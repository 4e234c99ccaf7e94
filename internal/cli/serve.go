package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/me/uthreads/internal/metrics"
	"github.com/me/uthreads/internal/server"
	"github.com/me/uthreads/internal/workload"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		scenario string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run inspector over HTTP",
		Long: `Serves recorded runs, their traces and Prometheus metrics. With --scenario
the scenario runs in the background and /api/v1/live shows its scheduler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			var sc *workload.Scenario
			if scenario != "" {
				var err error
				if sc, err = workload.Load(scenario); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd.ErrOrStderr(), sc)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringVar(&scenario, "scenario", "", "Scenario to run in the background")
	return cmd
}

// serve runs the inspector, and the optional scenario, until ctx is done.
func serve(ctx context.Context, scriptOut io.Writer, sc *workload.Scenario) error {
	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	live := &liveScheduler{}
	srv := server.New(st, logger, server.WithLive(live), server.WithMetrics(reg))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("inspector starting", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if sc != nil {
		g.Go(func() error {
			sess := &session{cfg: cfg, logger: logger, store: st, metrics: metrics.New(reg), live: live, out: scriptOut}
			rep, err := sess.run(gctx, sc)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			logger.Info("scenario done", "run_id", rep.Run.ID, "quantums", rep.Summary.TotalQuantums,
				"stalled", rep.Summary.Stalled)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("inspector stopped")
	return nil
}
