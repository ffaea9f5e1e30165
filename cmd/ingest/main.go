// Command ingest führt einen einzelnen Importlauf ohne HTTP-Server aus,
// z.B. aus einem externen Scheduler oder beim Neuaufsetzen der Datenbank.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"covid-news/app"
	"covid-news/config"
)

func main() {
	replayOnly := flag.Bool("replay-only", false, "only re-apply the review log, skip the page feed")
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this duration")
	flag.Parse()

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.Open(ctx, cfg, logging)
	if err != nil {
		logging.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer a.Close()

	if *replayOnly {
		n, err := a.Pages.ReplayReviews(ctx)
		if err != nil {
			logging.Fatal("Review replay failed", zap.Error(err))
		}
		logging.Info("Reviews replayed", zap.Int("applied", n))
		return
	}

	if a.Ingestor == nil {
		logging.Fatal("DB_INPUT_PAGE_PATH muss für den Import gesetzt sein")
	}
	report, err := a.Ingestor.Run(ctx)
	if err != nil {
		logging.Error("Ingest failed", zap.Error(err))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if err != nil {
		os.Exit(1)
	}
}
