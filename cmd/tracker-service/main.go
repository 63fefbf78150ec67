package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/opawatch/tracker/pkg/common/config"
	"github.com/opawatch/tracker/pkg/common/database"
	"github.com/opawatch/tracker/pkg/common/kafka"
	"github.com/opawatch/tracker/pkg/common/logger"
	"github.com/opawatch/tracker/pkg/lookup"
	"github.com/opawatch/tracker/pkg/socrata"
	"github.com/opawatch/tracker/pkg/tracker"
)

// refreshCheckInterval is how often the background trigger re-checks
// due-ness; the actual refresh cadence is governed by REFRESH_INTERVAL.
const refreshCheckInterval = time.Minute

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := tracker.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate tracker tables")
	}

	catalog, err := socrata.LoadCatalog(cfg.SourcesConfigPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default source catalog")
		catalog = socrata.DefaultCatalog()
	}

	client := socrata.NewClient(cfg.SocrataBaseURL, cfg.SourceTimeout)
	lookups := lookup.NewService(client, catalog.CaseDetails, cfg.RosterCSVURL, cfg.UIDCSVURL, cfg.SourceTimeout)

	updaters := []tracker.Updater{
		tracker.NewClosedCaseSummaryUpdater(client, catalog.ClosedCaseSummaries, lookups),
		tracker.NewNewComplaintUpdater(client, catalog.NewComplaints, lookups),
		tracker.NewClosedInvestigationUpdater(client, catalog.ClosedInvestigations),
	}

	var publisher tracker.EventPublisher
	if cfg.RefreshEventTopic != "" {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.RefreshEventTopic)
		defer producer.Close()
		publisher = producer
	}

	lock := tracker.NewRefreshLock(database.GetRedis(), cfg.RetryInterval)

	svc := tracker.NewService(repo, client, updaters, publisher, lock, cfg.RefreshInterval, cfg.RetryInterval)
	handler := tracker.NewHTTPHandler(svc, repo, lookups, cfg.ItemsPerPage)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Tracker Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	go func() {
		// Seed and refresh even when no requests arrive.
		svc.Update(ctx, time.Now())

		ticker := time.NewTicker(refreshCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				svc.Update(context.Background(), time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Tracker Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Tracker Service stopped")
}
