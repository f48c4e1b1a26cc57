package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Docketgraph/internal/app"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP triggers and the background ingestion workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	logger := logging.From(ctx)

	// Workers get their own context so queued jobs can finish after the
	// HTTP server stops taking requests.
	workerCtx, cancelWorkers := context.WithCancel(logging.With(context.Background(), logger))
	defer cancelWorkers()
	a.Ingestor.Start(workerCtx, cfg.Workers.Count)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(logging.With(context.Background(), logger), 30*time.Second)
		defer cancel()
		err := a.Server.Shutdown(shutdownCtx)

		a.Ingestor.Close()
		drained := make(chan struct{})
		go func() {
			_ = a.Ingestor.Wait()
			close(drained)
		}()
		drainWait := cfg.Workers.JobTimeout.Duration
		if drainWait <= 0 {
			drainWait = 30 * time.Second
		}
		select {
		case <-drained:
		case <-time.After(drainWait):
			logger.Warn("workers did not drain in time, cancelling")
			cancelWorkers()
			<-drained
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logging.LogError(ctx, err, "server stopped with error")
		return err
	}
	logger.Info("stopped")
	return nil
}
