package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clubhouse-backend/internal/api"
)

func newServeCommand(opts *rootOptions, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API, the notification workers and the scheduler",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts.ConfigPath, logger)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a, logger)
		},
	}
}

func serve(parent context.Context, a *app, logger *log.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a.notifier.Start(ctx)
	go a.scheduler.Run(ctx)

	router := api.NewRouter(a.cfg.Server, a.verifier, api.Deps{
		Store:        a.store,
		Timeline:     a.timeline,
		Reservations: a.reservations,
		WebPush:      a.webpush,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", a.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}
	a.drain(shutdownCtx, logger)

	logger.Println("Server gracefully stopped")
	return nil
}
