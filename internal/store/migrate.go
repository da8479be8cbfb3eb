package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// migration is one additive schema step. Steps run in order, each in its own
// transaction, and only when their version is above the recorded one.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: execAll(
		`CREATE TABLE IF NOT EXISTS chat_history (
			chat_id     TEXT PRIMARY KEY,
			session_id  TEXT,
			namespace   TEXT NOT NULL,
			user_input  TEXT NOT NULL,
			ai_output   TEXT NOT NULL,
			model       TEXT,
			timestamp   TEXT NOT NULL,
			tokens_used INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS short_term_memory (
			memory_id            TEXT PRIMARY KEY,
			namespace            TEXT NOT NULL,
			category_primary     TEXT NOT NULL,
			summary              TEXT NOT NULL,
			searchable_content   TEXT NOT NULL,
			importance_score     REAL NOT NULL,
			created_at           TEXT NOT NULL,
			expires_at           TEXT,
			access_count         INTEGER NOT NULL DEFAULT 0,
			is_permanent_context INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_st_ns_cat ON short_term_memory(namespace, category_primary)`,
		`CREATE TABLE IF NOT EXISTS long_term_memory (
			memory_id          TEXT PRIMARY KEY,
			namespace          TEXT NOT NULL,
			category_primary   TEXT NOT NULL,
			summary            TEXT NOT NULL,
			searchable_content TEXT NOT NULL,
			importance_score   REAL NOT NULL,
			classification     TEXT,
			created_at         TEXT NOT NULL,
			access_count       INTEGER NOT NULL DEFAULT 0,
			topic              TEXT,
			entities_json      TEXT,
			keywords_json      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lt_ns_cat ON long_term_memory(namespace, category_primary)`,
		`CREATE TABLE IF NOT EXISTS rules_memory (
			rule_id    TEXT PRIMARY KEY,
			namespace  TEXT NOT NULL,
			rule_text  TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	)},
	{version: 2, apply: addContentHash},
	{version: 3, apply: execAll(
		`CREATE INDEX IF NOT EXISTS idx_ch_ns_ts ON chat_history(namespace, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_ch_ns_session ON chat_history(namespace, session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_st_ns_created ON short_term_memory(namespace, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_st_ns_rank ON short_term_memory(namespace, importance_score DESC, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_lt_ns_created ON long_term_memory(namespace, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_ns_created ON rules_memory(namespace, created_at)`,
	)},
}

// SchemaVersion is the version a fully migrated database reports.
var SchemaVersion = migrations[len(migrations)-1].version

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return err
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) schemaVersion(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(v)
	return n, nil
}

func execAll(stmts ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func addContentHash(ctx context.Context, tx *sql.Tx) error {
	exists, err := columnExists(ctx, tx, "long_term_memory", "content_hash")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE long_term_memory ADD COLUMN content_hash TEXT`); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_lt_ns_hash ON long_term_memory(namespace, content_hash)`)
	return err
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	return n > 0, err
}

// enableFTS creates external-content FTS5 indexes over both tiers and the
// triggers that keep them in sync. Freshly created indexes are rebuilt from
// the existing rows.
func (s *SQLiteStore) enableFTS(ctx context.Context) error {
	for _, table := range []string{"short_term_memory", "long_term_memory"} {
		fts := ftsTable(table)

		var existing int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, fts).Scan(&existing); err != nil {
			return err
		}

		stmts := []string{
			fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %[1]s USING fts5(
				summary, searchable_content, content=%[2]s, content_rowid=rowid
			)`, fts, table),
			fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_ai AFTER INSERT ON %[2]s BEGIN
				INSERT INTO %[1]s(rowid, summary, searchable_content) VALUES (new.rowid, new.summary, new.searchable_content);
			END`, fts, table),
			fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_ad AFTER DELETE ON %[2]s BEGIN
				INSERT INTO %[1]s(%[1]s, rowid, summary, searchable_content) VALUES ('delete', old.rowid, old.summary, old.searchable_content);
			END`, fts, table),
			fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_au AFTER UPDATE OF summary, searchable_content ON %[2]s BEGIN
				INSERT INTO %[1]s(%[1]s, rowid, summary, searchable_content) VALUES ('delete', old.rowid, old.summary, old.searchable_content);
				INSERT INTO %[1]s(rowid, summary, searchable_content) VALUES (new.rowid, new.summary, new.searchable_content);
			END`, fts, table),
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("fts %s: %w", table, err)
			}
		}

		if existing == 0 {
			if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s(%[1]s) VALUES ('rebuild')`, fts)); err != nil {
				return fmt.Errorf("fts rebuild %s: %w", table, err)
			}
		}
	}
	return nil
}

func ftsTable(table string) string {
	switch table {
	case "short_term_memory":
		return "short_term_fts"
	default:
		return "long_term_fts"
	}
}
