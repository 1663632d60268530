package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskgate/internal/handlers"
	"riskgate/internal/ledger"
	"riskgate/internal/middleware"
	"riskgate/internal/ratelimit"
	"riskgate/internal/signals"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const limiterIdle = 10 * time.Minute

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP evaluation service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.metrics.WithRuntime()

	if n := c.ledger.CleanupExpired(ctx); n > 0 {
		log.WithField("removed", n).Info("Removed expired blacklist entries at startup")
	}

	limiter := ratelimit.NewStore(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	h := handlers.New(
		c.engine,
		newIssuer(),
		signals.NewGatherer(log, cfg.Detection.ProbeTimeout),
		c.kv,
		log,
	)
	router := handlers.NewRouter(h, handlers.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Timeout:        cfg.Server.RequestTimeout,
		Middleware:     middleware.New(limiter, log, cfg.Server.APIKey),
		Metrics:        c.metrics,
	})

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("Starting riskgate")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runCleanup(gctx, c.ledger, cfg.Ledger.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, time.Minute, limiterIdle)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
		return err
	}
	log.Info("Server exited gracefully")
	return nil
}

// runCleanup removes expired blacklist entries every interval until ctx ends.
func runCleanup(ctx context.Context, l *ledger.Ledger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.CleanupExpired(ctx); n > 0 {
				log.WithField("removed", n).Debug("Blacklist cleanup")
			}
		}
	}
}
