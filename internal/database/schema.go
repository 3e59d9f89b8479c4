package database

import (
	"context"
	"fmt"
)

// EnsureSchema creates all tables and indexes if they do not exist.
// Statements are idempotent so startup is safe to repeat; there is no
// external migration tooling for this single-binary service.
func (db *Database) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.PG.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	db.logger.Info("Database schema ensured")
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS links (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		url              TEXT,
		title            TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		thumbnail        TEXT NOT NULL DEFAULT '',
		site_name        TEXT NOT NULL DEFAULT '',
		content_type     TEXT NOT NULL DEFAULT 'article',
		text_content     TEXT NOT NULL DEFAULT '',
		image_data       TEXT,
		categories       TEXT[] NOT NULL DEFAULT '{}',
		ai_summary       TEXT NOT NULL DEFAULT '',
		metadata         JSONB NOT NULL DEFAULT '{}',
		embedding        REAL[],
		status           TEXT NOT NULL DEFAULT 'active',
		added_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		archived_at      TIMESTAMPTZ,
		last_shown_at    TIMESTAMPTZ,
		shown_count      INTEGER NOT NULL DEFAULT 0,
		engagement_score REAL NOT NULL DEFAULT 0,
		avg_dwell_ms     REAL NOT NULL DEFAULT 0,
		open_count       INTEGER NOT NULL DEFAULT 0,
		liked_at         TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_links_user_url
		ON links (user_id, url) WHERE url IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_links_user_status
		ON links (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_links_user_added
		ON links (user_id, added_at DESC)`,

	`CREATE TABLE IF NOT EXISTS engagements (
		id              UUID PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		link_id         TEXT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		event_type      TEXT NOT NULL,
		dwell_time_ms   INTEGER,
		swipe_velocity  REAL,
		card_index      INTEGER,
		hour_of_day     SMALLINT NOT NULL,
		day_of_week     SMALLINT NOT NULL,
		session_id      TEXT,
		feed_request_id TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_engagements_user_link_created
		ON engagements (user_id, link_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_engagements_user_type_created
		ON engagements (user_id, event_type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_engagements_user_session_created
		ON engagements (user_id, session_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_engagements_user_feedreq_created
		ON engagements (user_id, feed_request_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS time_preferences (
		id             BIGSERIAL PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		hour_slot      SMALLINT NOT NULL,
		day_type       TEXT NOT NULL,
		category       TEXT NOT NULL,
		avg_engagement REAL NOT NULL DEFAULT 0,
		sample_count   INTEGER NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, hour_slot, day_type, category)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timeprefs_user_slot
		ON time_preferences (user_id, hour_slot, day_type)`,

	`CREATE TABLE IF NOT EXISTS ranking_events (
		id                BIGSERIAL PRIMARY KEY,
		user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		feed_request_id   TEXT NOT NULL,
		link_id           TEXT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		candidate_rank    INTEGER NOT NULL,
		served_rank       INTEGER,
		base_score        REAL NOT NULL,
		rerank_score      REAL,
		final_score       REAL NOT NULL,
		features          JSONB NOT NULL DEFAULT '{}',
		algorithm_version TEXT NOT NULL DEFAULT '',
		reranker_version  TEXT,
		active_category   TEXT NOT NULL DEFAULT 'All',
		cards_shown       INTEGER NOT NULL DEFAULT 0,
		session_id        TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (feed_request_id, link_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ranking_user_created
		ON ranking_events (user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ranking_user_feedreq_rank
		ON ranking_events (user_id, feed_request_id, candidate_rank)`,
	`CREATE INDEX IF NOT EXISTS idx_ranking_user_link_created
		ON ranking_events (user_id, link_id, created_at)`,
}
