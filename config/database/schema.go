package database

import (
	"database/sql"

	"memonote/pkg/logger"
)

// The uniqueness constraint on (memo_id, page_number) is DEFERRABLE so the
// renumbering pass after a page delete can shift page numbers in a single
// statement without tripping a transient duplicate.
const schema = `
CREATE TABLE IF NOT EXISTS memos (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT 'Untitled',
	content       TEXT NOT NULL DEFAULT '',
	main_category TEXT NOT NULL DEFAULT '',
	sub_category  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_memos_user ON memos (user_id);

CREATE TABLE IF NOT EXISTS memo_pages (
	id          TEXT PRIMARY KEY,
	memo_id     TEXT NOT NULL REFERENCES memos (id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL DEFAULT 1,
	content     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT uix_memo_page_number UNIQUE (memo_id, page_number) DEFERRABLE INITIALLY IMMEDIATE
);
CREATE INDEX IF NOT EXISTS idx_memo_page_lookup ON memo_pages (memo_id, page_number);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(db *sql.DB) {
	if _, err := db.Exec(schema); err != nil {
		logger.Sugar.Fatalf("Failed to ensure database schema: %v", err)
	}
}
