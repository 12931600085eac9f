package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	gorillahandlers "github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/api/rest"
	"github.com/matthock/snipsync/internal/backend"
	"github.com/matthock/snipsync/internal/capture"
	"github.com/matthock/snipsync/internal/config"
	"github.com/matthock/snipsync/internal/jira"
	"github.com/matthock/snipsync/internal/lifecycle"
	"github.com/matthock/snipsync/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	cfg := config.Load()

	syncInterval, err := time.ParseDuration(cfg.SyncInterval)
	if err != nil {
		logger.Warn("invalid sync interval, using default", zap.Error(err))
		syncInterval = 2 * time.Minute
	}

	stateStore, err := store.Open(cfg.StatePath)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer stateStore.Close()

	resolve := config.NewBackendResolver(stateStore, cfg.BackendURL)
	backendClient := backend.NewClient(backend.Resolver(resolve), logger)

	jiraClient, err := jira.NewClient(jira.Config{
		BaseURL:    cfg.JiraBaseURL,
		Username:   cfg.JiraUsername,
		Token:      cfg.JiraToken,
		AuthMode:   cfg.JiraAuthMode,
		ProjectKey: cfg.JiraProjectKey,
		IssueType:  cfg.JiraIssueType,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create jira client", zap.Error(err))
	}

	service := lifecycle.NewService(stateStore, backendClient, jiraClient, logger)
	refresher := lifecycle.NewRefresher(service, syncInterval, logger)

	surface := capture.NewHTTPSurface(cfg.SurfaceURL)
	flow := capture.NewFlow(stateStore, backendClient, surface, surface, logger)

	restHandler := rest.NewHandler(service, flow, logger)

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		restHandler.RegisterRoutes(r)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// The browser surfaces call the daemon cross-origin.
	corsHandler := gorillahandlers.CORS(
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedOrigins([]string{cfg.CORSOrigins}),
	)(router)

	addr := fmt.Sprintf(":%s", cfg.ListenPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: corsHandler,
	}

	go func() {
		logger.Info("starting REST API server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wake the task store before the first refresh; the loop still starts if
	// shutdown interrupts the wake.
	go func() {
		if err := backendClient.WakeUp(ctx, func(attempt int) {
			logger.Info("waking task store", zap.Int("attempt", attempt))
		}); err != nil {
			logger.Warn("task store wake interrupted", zap.Error(err))
			return
		}
		refresher.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}
