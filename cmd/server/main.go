package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/api"
	"github.com/atrium-ops/bms-backend-go/internal/config"
	"github.com/atrium-ops/bms-backend-go/internal/database"
	"github.com/atrium-ops/bms-backend-go/internal/notify"
	"github.com/atrium-ops/bms-backend-go/internal/websocket"
	"github.com/atrium-ops/bms-backend-go/internal/worker"
	"github.com/atrium-ops/bms-backend-go/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Create repositories
	repos := database.NewRepositories(db)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Build the evaluation engine
	conditions := alerting.NewConditionEvaluator(alerting.HistoricalBaseline{}, log)
	rules := alerting.NewRuleEvaluator(conditions, repos.Alerts, log)
	engine := alerting.NewEngine(rules, alerting.EngineConfig{
		MaxConcurrentEvals: cfg.Engine.MaxConcurrentEvals,
	}, log)

	// Build the notification pipeline
	registry := notify.NewDispatcherRegistry()
	registry.Register(notify.NewEmailDispatcher(notify.NewSMTPEmailProvider(notify.SMTPConfig{
		Host:     cfg.Notifications.SMTP.Host,
		Port:     cfg.Notifications.SMTP.Port,
		From:     cfg.Notifications.SMTP.From,
		Username: cfg.Notifications.SMTP.Username,
		Password: cfg.Notifications.SMTP.Password,
	})))
	registry.Register(notify.NewSMSDispatcher(notify.NewHTTPSMSProvider(notify.SMSGatewayConfig{
		URL:    cfg.Notifications.SMS.GatewayURL,
		APIKey: cfg.Notifications.SMS.APIKey,
		From:   cfg.Notifications.SMS.From,
	}, nil)))
	registry.Register(notify.NewWebhookDispatcher(nil))

	router := notify.NewRouter(registry, notify.NewFrequencyLimiter(), cfg.Notifications.DispatchTimeout, log)
	escalator := notify.NewEscalationScheduler(log)

	// Start the background worker
	provider := worker.NewSnapshotProvider(repos.Readings, cfg.Engine.HistoryWindow)
	w := worker.New(engine, router, escalator, provider, repos, wsHub, *cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		log.Fatal("Failed to start worker:", err)
	}

	// Initialize HTTP router
	httpRouter := api.NewRouter(cfg, repos, engine, w, wsHub, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Starting BMS backend on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Info("Server exited")
}
