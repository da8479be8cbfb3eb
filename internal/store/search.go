package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rcliao/apogeemind/internal/model"
)

// hitColumns selects a model.SearchHit from a tier table aliased as m.
const hitColumns = `m.memory_id, m.namespace, m.category_primary, m.summary, m.searchable_content,
	m.importance_score, m.created_at, m.access_count`

// SearchFTS matches the query against the FTS5 index of each tier and returns
// up to p.Limit hits per tier, short-term first.
func (s *SQLiteStore) SearchFTS(ctx context.Context, p SearchParams) ([]model.SearchHit, error) {
	if !s.ftsEnabled {
		return nil, fmt.Errorf("fts search: full-text index unavailable")
	}
	match := FTSQuery(p.Query)
	if match == "" {
		return nil, nil
	}
	limit := searchLimit(p.Limit)
	now := formatTime(time.Now())

	short, err := s.searchTier(ctx, model.TierShortTerm, `
		SELECT `+hitColumns+` FROM short_term_memory m
		JOIN short_term_fts f ON f.rowid = m.rowid
		WHERE short_term_fts MATCH ? AND m.namespace = ? AND (m.expires_at IS NULL OR m.expires_at > ?)
		ORDER BY m.importance_score DESC, m.created_at DESC
		LIMIT ?`, match, p.NS, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search short-term: %w", err)
	}

	long, err := s.searchTier(ctx, model.TierLongTerm, `
		SELECT `+hitColumns+` FROM long_term_memory m
		JOIN long_term_fts f ON f.rowid = m.rowid
		WHERE long_term_fts MATCH ? AND m.namespace = ?
		ORDER BY m.importance_score DESC, m.created_at DESC
		LIMIT ?`, match, p.NS, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search long-term: %w", err)
	}

	return append(short, long...), nil
}

// SearchLike is the substring fallback. An empty query matches everything in
// the namespace.
func (s *SQLiteStore) SearchLike(ctx context.Context, p SearchParams) ([]model.SearchHit, error) {
	limit := searchLimit(p.Limit)
	pattern := "%" + escapeLike(strings.TrimSpace(p.Query)) + "%"
	now := formatTime(time.Now())

	short, err := s.searchTier(ctx, model.TierShortTerm, `
		SELECT `+hitColumns+` FROM short_term_memory m
		WHERE m.namespace = ? AND (m.expires_at IS NULL OR m.expires_at > ?)
		  AND (m.searchable_content LIKE ? ESCAPE '\' OR m.summary LIKE ? ESCAPE '\')
		ORDER BY m.importance_score DESC, m.created_at DESC
		LIMIT ?`, p.NS, now, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("like search short-term: %w", err)
	}

	long, err := s.searchTier(ctx, model.TierLongTerm, `
		SELECT `+hitColumns+` FROM long_term_memory m
		WHERE m.namespace = ?
		  AND (m.searchable_content LIKE ? ESCAPE '\' OR m.summary LIKE ? ESCAPE '\')
		ORDER BY m.importance_score DESC, m.created_at DESC
		LIMIT ?`, p.NS, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("like search long-term: %w", err)
	}

	return append(short, long...), nil
}

func (s *SQLiteStore) searchTier(ctx context.Context, tier model.Tier, query string, args ...any) ([]model.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []model.SearchHit
	for rows.Next() {
		h := model.SearchHit{Tier: tier}
		var category, createdAt string
		var importance sql.NullFloat64
		if err := rows.Scan(&h.MemoryID, &h.Namespace, &category, &h.Summary, &h.SearchableContent,
			&importance, &createdAt, &h.AccessCount); err != nil {
			return nil, err
		}
		h.Category = model.Category(category)
		h.ImportanceScore = importance.Float64
		h.CreatedAt = parseTime(createdAt)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// FTSQuery turns free text into an FTS5 expression: every token that carries
// a letter or digit is quoted and the tokens are OR-ed together. Returns ""
// when nothing searchable remains.
func FTSQuery(q string) string {
	var terms []string
	for _, tok := range strings.Fields(q) {
		if !strings.ContainsFunc(tok, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func searchLimit(n int) int {
	if n <= 0 {
		return 20
	}
	return n
}
