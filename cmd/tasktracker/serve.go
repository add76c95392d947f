package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chepyr/go-task-share/internal/auth"
	"github.com/chepyr/go-task-share/internal/config"
	"github.com/chepyr/go-task-share/internal/db"
	"github.com/chepyr/go-task-share/internal/handlers"
	"github.com/chepyr/go-task-share/internal/reminders"
	"github.com/chepyr/go-task-share/internal/tasks"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the reminder scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := initDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDB(dbConn)
	if err := db.Migrate(ctx, dbConn, cfg.DBDriver); err != nil {
		return err
	}

	handler, taskRepo, err := initHandlers(cfg, dbConn)
	if err != nil {
		return err
	}
	defer handler.RateLimiter.Stop()
	defer handler.WSRateLimiter.Stop()

	scheduler := &reminders.Scheduler{
		Tasks:    taskRepo,
		Notifier: handler.WSHub,
		Interval: cfg.ReminderInterval,
		Lead:     cfg.ReminderLeadDays,
	}
	go scheduler.Run(ctx)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return startServer(ctx, server)
}

func initHandlers(cfg *config.Config, dbConn *sql.DB) (*handlers.Handler, *db.TaskRepository, error) {
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, nil, err
	}
	provider := auth.NewProvider(db.NewUserRepository(dbConn))
	taskRepo := db.NewTaskRepository(dbConn)

	hub := handlers.NewWSHub()
	service := tasks.NewService(taskRepo, provider)
	service.Notifier = hub

	handler := &handlers.Handler{
		Tasks:          service,
		Auth:           provider,
		Tokens:         tokens,
		RateLimiter:    handlers.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow),
		WSRateLimiter:  handlers.NewRateLimiter(cfg.WSRateLimit, cfg.WSRateWindow),
		WSHub:          hub,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
	}
	return handler, taskRepo, nil
}

func startServer(ctx context.Context, server *http.Server) error {
	log.Printf("Starting server on %s", server.Addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
