package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"covid-news/api"
	"covid-news/app"
	"covid-news/config"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	a, err := app.Open(context.Background(), cfg, logging)
	if err != nil {
		logging.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer a.Close()

	// Reviews aus dem Audit-Log nachziehen, falls die Datenbank neu aufgesetzt wurde
	if n, err := a.Pages.ReplayReviews(context.Background()); err != nil {
		logging.Error("Review replay failed", zap.Error(err))
	} else {
		logging.Info("Reviews replayed", zap.Int("applied", n))
	}

	router := api.NewRouter(api.Deps{
		Taxonomy:    a.Taxonomy,
		Queries:     a.Queries,
		Pages:       a.Pages,
		Feedback:    a.Feedback,
		Ingestor:    a.Ingestor,
		Cache:       a.Cache,
		Sources:     a.Sources,
		Logger:      logging,
		Password:    cfg.Password,
		APIKey:      cfg.APISecretKey,
		AllowOrigin: cfg.AllowOrigin,
	})

	// Setup Cron
	if a.Ingestor != nil {
		cronScheduler := cron.New()
		_, err := cronScheduler.AddFunc(cfg.CronSchedule, func() {
			logging.Info("Running scheduled ingest job...")
			report, err := a.Ingestor.Run(context.Background())
			if err != nil {
				logging.Error("Cron job failed", zap.Error(err))
				return
			}
			logging.Info("Cron job completed",
				zap.Int("inserted", report.Inserted),
				zap.Int("updated", report.Updated),
				zap.Int("tweets", report.TweetsInserted))
		})
		if err != nil {
			logging.Fatal("Invalid CRON_SCHEDULE", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
		}
		cronScheduler.Start()
		defer cronScheduler.Stop()
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}
