package services

import (
	"context"
	"math"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/messaging"
	"github.com/lanefeed/lanefeed/pkg/models"
)

func newEngagementTestService(t *testing.T) (*EngagementService, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db := &database.Database{PG: mock}
	stream := messaging.NewEventStream(&config.Config{}, logger)
	return NewEngagementService(db, stream, logger), mock
}

func TestEngagementService_Ingest(t *testing.T) {
	dwellMs := 10000
	score := math.Min(0.7, math.Log(1+10.0)/math.Log(121)*0.7)

	t.Run("dwell batch folds into running means and time preferences", func(t *testing.T) {
		svc, mock := newEngagementTestService(t)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM links").
			WithArgs("user-1", []string{"link-1"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("link-1"))
		mock.ExpectExec("INSERT INTO engagements").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery("UPDATE links SET").
			WithArgs("user-1", "link-1", score, 10000.0).
			WillReturnRows(pgxmock.NewRows([]string{"categories"}).AddRow([]string{"Tech", "AI"}))
		// One upsert per returned category, alphabetical.
		mock.ExpectExec("INSERT INTO time_preferences").
			WithArgs("user-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "AI", score, 1, score, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO time_preferences").
			WithArgs("user-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "Tech", score, 1, score, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		processed, err := svc.Ingest(context.Background(), "user-1", []models.EngagementEvent{
			{LinkID: "link-1", EventType: models.EventDwell, DwellTimeMs: &dwellMs},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("aggregates impression and open counters per link", func(t *testing.T) {
		svc, mock := newEngagementTestService(t)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM links").
			WithArgs("user-1", []string{"link-1", "link-2"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("link-1").AddRow("link-2"))
		for i := 0; i < 3; i++ {
			mock.ExpectExec("INSERT INTO engagements").
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectExec("UPDATE links SET shown_count").
			WithArgs("user-1", "link-1", 2, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE links SET open_count").
			WithArgs("user-1", "link-2", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		processed, err := svc.Ingest(context.Background(), "user-1", []models.EngagementEvent{
			{LinkID: "link-1", EventType: models.EventImpression},
			{LinkID: "link-2", EventType: models.EventOpen},
			{LinkID: "link-1", EventType: models.EventImpression},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, processed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("drops events for links that no longer exist", func(t *testing.T) {
		svc, mock := newEngagementTestService(t)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM links").
			WithArgs("user-1", []string{"link-gone"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		processed, err := svc.Ingest(context.Background(), "user-1", []models.EngagementEvent{
			{LinkID: "link-gone", EventType: models.EventOpen},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, processed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips dwell folding when the row vanished mid-batch", func(t *testing.T) {
		svc, mock := newEngagementTestService(t)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM links").
			WithArgs("user-1", []string{"link-1"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("link-1"))
		mock.ExpectExec("INSERT INTO engagements").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery("UPDATE links SET").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectCommit()

		processed, err := svc.Ingest(context.Background(), "user-1", []models.EngagementEvent{
			{LinkID: "link-1", EventType: models.EventDwell, DwellTimeMs: &dwellMs},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a batch with no valid events", func(t *testing.T) {
		svc, mock := newEngagementTestService(t)
		defer mock.Close()

		_, err := svc.Ingest(context.Background(), "user-1", []models.EngagementEvent{
			{LinkID: "", EventType: models.EventOpen},
			{LinkID: "link-1", EventType: "hover"},
		})
		require.ErrorIs(t, err, ErrNoValidEvents)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown event types are skipped, not fatal", func(t *testing.T) {
		svc, mock := newEngagementTestService(t)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM links").
			WithArgs("user-1", []string{"link-1"}).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("link-1"))
		mock.ExpectExec("INSERT INTO engagements").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE links SET shown_count").
			WithArgs("user-1", "link-1", 1, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		processed, err := svc.Ingest(context.Background(), "user-1", []models.EngagementEvent{
			{LinkID: "link-1", EventType: models.EventImpression},
			{LinkID: "link-1", EventType: "hover"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInteractionScore(t *testing.T) {
	t.Run("log-scaled dwell saturates at two minutes", func(t *testing.T) {
		assert.InDelta(t, 0.7, interactionScore(120000, nil), 1e-9)
		assert.InDelta(t, 0.7, interactionScore(600000, nil), 1e-9)
	})

	t.Run("ten seconds lands at half the dwell range", func(t *testing.T) {
		assert.InDelta(t, 0.35, interactionScore(10000, nil), 1e-3)
	})

	t.Run("fast swiping is penalized, capped at 0.2", func(t *testing.T) {
		base := interactionScore(10000, nil)

		slow := 0.3
		assert.InDelta(t, base, interactionScore(10000, &slow), 1e-9)

		brisk := 1.5
		assert.InDelta(t, base-0.1, interactionScore(10000, &brisk), 1e-9)

		frantic := 9.0
		assert.InDelta(t, base-0.2, interactionScore(10000, &frantic), 1e-9)
	})

	t.Run("never goes negative", func(t *testing.T) {
		frantic := 9.0
		assert.Equal(t, 0.0, interactionScore(1, &frantic))
	})
}
