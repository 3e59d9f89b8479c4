package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/sirupsen/logrus"
)

func main() {
	days := flag.Int("days", 14, "export ranking events from the last N days")
	out := flag.String("out", "tmp/training-dataset.jsonl", "output JSONL path")
	userID := flag.String("user", "", "restrict the export to one user id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	db, err := database.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	exporter := services.NewExportService(db, logger)
	rows, err := exporter.Export(context.Background(), f, services.ExportOptions{
		Days:   *days,
		UserID: *userID,
	})
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	log.Printf("Wrote %d rows to %s", rows, *out)
}
