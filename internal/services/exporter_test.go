package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefeed/lanefeed/internal/database"
)

var exportCols = []string{
	"feed_request_id", "user_id", "session_id", "link_id",
	"algorithm_version", "reranker_version", "active_category",
	"candidate_rank", "served_rank", "base_score", "rerank_score",
	"final_score", "features", "created_at",
	"content_type", "categories", "liked",
	"open_count", "max_dwell_ms", "avg_dwell_ms", "fast_skip_count",
}

func newExportTestService(t *testing.T) (*ExportService, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewExportService(&database.Database{PG: mock}, logger), mock
}

func TestExportService_Export(t *testing.T) {
	sessionID := "sess-1"
	servedRank := 1
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	svc, mock := newExportTestService(t)
	defer mock.Close()

	rows := pgxmock.NewRows(exportCols).
		AddRow(
			"req-1", "user-1", &sessionID, "link-1",
			"rank-v2", (*string)(nil), "All",
			1, &servedRank, 0.71, (*float64)(nil),
			0.71, []byte(`{"f_base_score":0.71}`), created,
			"article", []string{"Tech"}, false,
			1, 0, 0.0, 0,
		).
		AddRow(
			"req-1", "user-1", &sessionID, "link-2",
			"rank-v2", (*string)(nil), "All",
			2, (*int)(nil), 0.55, (*float64)(nil),
			0.55, []byte{}, created,
			"article", []string(nil), false,
			0, 0, 0.0, 0,
		)

	mock.ExpectQuery("FROM ranking_events r").
		WithArgs(pgxmock.AnyArg(), "user-1").
		WillReturnRows(rows)

	var out bytes.Buffer
	count, err := svc.Export(context.Background(), &out, ExportOptions{Days: 7, UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var served map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &served))
	assert.Equal(t, "req-1", served["feed_request_id"])
	assert.Equal(t, "sess-1", served["session_id"])
	assert.Equal(t, "rank-v2", served["algorithm_version"])
	assert.Equal(t, float64(1), served["served_rank"])
	assert.InDelta(t, 0.6, served["reward"].(float64), 1e-9)
	assert.Equal(t, map[string]interface{}{"f_base_score": 0.71}, served["features"])

	var skipped map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &skipped))
	assert.Nil(t, skipped["served_rank"])
	assert.Nil(t, skipped["reranker_version"])
	assert.Equal(t, float64(0), skipped["reward"])
	// nil DB arrays surface as [] and {}, never null.
	assert.Equal(t, []interface{}{}, skipped["categories"])
	assert.Equal(t, map[string]interface{}{}, skipped["features"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRewardLabel(t *testing.T) {
	tests := []struct {
		name          string
		served        bool
		openCount     int
		maxDwellMs    int
		liked         bool
		fastSkipCount int
		want          float64
	}{
		{"unserved candidates earn nothing", false, 3, 90000, true, 0, 0},
		{"an open is the strongest single signal", true, 1, 0, false, 0, 0.6},
		{"dwell scales linearly to 45s", true, 0, 22500, false, 0, 0.175},
		{"dwell saturates at 45s", true, 0, 90000, false, 0, 0.35},
		{"a like matches saturated dwell", true, 0, 0, true, 0, 0.35},
		{"fast skips subtract", true, 1, 0, false, 1, 0.3},
		{"floor at zero", true, 0, 0, false, 2, 0},
		{"ceiling at one", true, 1, 45000, true, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewardLabel(tt.served, tt.openCount, tt.maxDwellMs, tt.liked, tt.fastSkipCount)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
