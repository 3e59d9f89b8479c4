package services

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
)

func TestHealthService_CheckHealth(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{}

	t.Run("healthy when postgres and redis answer", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mr := miniredis.RunT(t)
		db := &database.Database{
			PG:    mock,
			Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		}

		status := NewHealthService(cfg, logger, db).CheckHealth()
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "healthy", status.Services["postgresql"])
		assert.Equal(t, "healthy", status.Services["redis"])
		assert.Empty(t, status.Critical)
		assert.Empty(t, status.NonCritical)
	})

	t.Run("redis loss only degrades", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		mr.Close()

		db := &database.Database{PG: mock, Redis: client}

		status := NewHealthService(cfg, logger, db).CheckHealth()
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "unhealthy", status.Services["redis"])
		assert.Equal(t, []string{"redis"}, status.NonCritical)
		assert.Empty(t, status.Critical)
	})

	t.Run("postgres loss is fatal", func(t *testing.T) {
		mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		db := &database.Database{PG: mock}

		status := NewHealthService(cfg, logger, db).CheckHealth()
		assert.Equal(t, "unhealthy", status.Status)
		assert.Equal(t, "unhealthy", status.Services["postgresql"])
		assert.Equal(t, []string{"postgresql"}, status.Critical)
		assert.NotContains(t, status.Services, "redis")
	})

	t.Run("without redis configured there is no redis verdict", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		db := &database.Database{PG: mock}

		status := NewHealthService(cfg, logger, db).CheckHealth()
		assert.Equal(t, "healthy", status.Status)
		assert.NotContains(t, status.Services, "redis")
	})
}
