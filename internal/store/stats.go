package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string           `json:"db_path"`
	DBSizeBytes   int64            `json:"db_size_bytes"`
	SchemaVersion int              `json:"schema_version"`
	FTSEnabled    bool             `json:"fts_enabled"`
	ChatHistory   int              `json:"chat_history"`
	ShortTerm     int              `json:"short_term_memory"`
	LongTerm      int              `json:"long_term_memory"`
	Rules         int              `json:"rules_memory"`
	Namespaces    []NamespaceStats `json:"namespaces"`
}

// NamespaceStats holds per-namespace counts.
type NamespaceStats struct {
	NS        string `json:"ns"`
	Chats     int    `json:"chats"`
	ShortTerm int    `json:"short_term"`
	LongTerm  int    `json:"long_term"`
	Rules     int    `json:"rules"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, FTSEnabled: s.ftsEnabled}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	st.SchemaVersion, _ = s.schemaVersion(ctx)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history`).Scan(&st.ChatHistory)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM short_term_memory`).Scan(&st.ShortTerm)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_term_memory`).Scan(&st.LongTerm)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules_memory`).Scan(&st.Rules)

	ns, err := s.ListNamespaces(ctx)
	if err != nil {
		return st, err
	}
	st.Namespaces = ns
	return st, nil
}

// ListNamespaces returns every namespace that has at least one row in any
// table, with per-table counts.
func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]NamespaceStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace,
		       SUM(t = 'c'), SUM(t = 's'), SUM(t = 'l'), SUM(t = 'r')
		FROM (
			SELECT namespace, 'c' AS t FROM chat_history
			UNION ALL SELECT namespace, 's' FROM short_term_memory
			UNION ALL SELECT namespace, 'l' FROM long_term_memory
			UNION ALL SELECT namespace, 'r' FROM rules_memory
		)
		GROUP BY namespace ORDER BY namespace`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NamespaceStats
	for rows.Next() {
		var ns NamespaceStats
		if err := rows.Scan(&ns.NS, &ns.Chats, &ns.ShortTerm, &ns.LongTerm, &ns.Rules); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}
