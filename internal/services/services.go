package services

import (
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/messaging"
	"github.com/lanefeed/lanefeed/internal/ml"
	"github.com/lanefeed/lanefeed/internal/reranker"
	"github.com/lanefeed/lanefeed/internal/unfurl"
)

type Services struct {
	Auth       *AuthService
	Library    *LibraryService
	Ingest     *IngestService
	Engagement *EngagementService
	Feed       *FeedService
	Export     *ExportService
	Health     *HealthService
	RateLimit  *RateLimitService
	Stream     *messaging.EventStream
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) *Services {
	guard := unfurl.NewGuard()
	fetcher := unfurl.NewFetcher(cfg.Unfurl, guard, logger)
	aiClient := ml.NewClient(cfg.AI, db.Redis, logger)
	stream := messaging.NewEventStream(cfg, logger)
	rr := reranker.New(cfg.Ranking.Reranker, logger)

	library := NewLibraryService(db, logger)

	return &Services{
		Auth:       NewAuthService(cfg, logger, db),
		Library:    library,
		Ingest:     NewIngestService(db, fetcher, aiClient, logger),
		Engagement: NewEngagementService(db, stream, logger),
		Feed:       NewFeedService(db, library, rr, stream, cfg, logger),
		Export:     NewExportService(db, logger),
		Health:     NewHealthService(cfg, logger, db),
		RateLimit:  NewRateLimitService(cfg, logger, db.Redis),
		Stream:     stream,
	}
}

// Close releases background resources owned by the service layer.
func (s *Services) Close() {
	s.Stream.Close()
}
