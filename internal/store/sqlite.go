package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"

	"github.com/rcliao/apogeemind/internal/model"
)

// SQLite's built-in lower() only folds ASCII; fold() uses Go's Unicode tables.
func init() {
	if err := sqlite.RegisterDeterministicScalarFunction("fold", 1, foldFunc); err != nil {
		panic(fmt.Sprintf("register fold: %v", err))
	}
}

func foldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	ftsEnabled bool

	mu      sync.Mutex
	entropy io.Reader
}

var _ Store = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*options)

type options struct {
	disableFTS bool
}

// WithoutFTS forces the LIKE search fallback.
func WithoutFTS() Option {
	return func(o *options) { o.disableFTS = true }
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer; the scheduler and foreground calls queue here

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	ctx := context.Background()
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if !o.disableFTS {
		s.ftsEnabled = s.enableFTS(ctx) == nil
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// FTSEnabled reports whether the FTS5 indexes were created.
func (s *SQLiteStore) FTSEnabled() bool {
	return s.ftsEnabled
}

// Execute runs query and decodes every row into a column->value map.
func (s *SQLiteStore) Execute(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertChat(ctx context.Context, c model.ChatExchange) (model.ChatExchange, error) {
	if c.ChatID == "" {
		c.ChatID = s.newID()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	c.Timestamp = c.Timestamp.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (chat_id, session_id, namespace, user_input, ai_output, model, timestamp, tokens_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChatID, c.SessionID, c.Namespace, c.UserInput, c.AIOutput, nullString(c.Model),
		formatTime(c.Timestamp), c.TokensUsed)
	if err != nil {
		return c, fmt.Errorf("insert chat: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) InsertLongTerm(ctx context.Context, m model.LongTermMemory) (model.LongTermMemory, error) {
	if m.MemoryID == "" {
		m.MemoryID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()

	if _, err := insertLongTerm(ctx, s.db, m, ""); err != nil {
		return m, fmt.Errorf("insert long-term memory: %w", err)
	}
	return m, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLongTerm(ctx context.Context, ex execer, m model.LongTermMemory, onConflict string) (int64, error) {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO long_term_memory (memory_id, namespace, category_primary, summary, searchable_content,
		   importance_score, classification, created_at, access_count, topic, entities_json, keywords_json, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) `+onConflict,
		m.MemoryID, m.Namespace, string(m.Category), m.Summary, m.SearchableContent,
		m.ImportanceScore, nullString(m.Classification), formatTime(m.CreatedAt), m.AccessCount,
		nullString(m.Topic), jsonList(m.Entities), jsonList(m.Keywords), nullString(m.ContentHash))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) InsertShortTerm(ctx context.Context, m model.ShortTermMemory) (InsertResult, error) {
	return insertShortTerm(ctx, s.db, m)
}

func insertShortTerm(ctx context.Context, ex execer, m model.ShortTermMemory) (InsertResult, error) {
	if m.MemoryID == "" {
		return 0, fmt.Errorf("insert short-term memory: memory_id is required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	var expiresAt *string
	if m.ExpiresAt != nil {
		exp := formatTime(*m.ExpiresAt)
		expiresAt = &exp
	}

	res, err := ex.ExecContext(ctx,
		`INSERT INTO short_term_memory (memory_id, namespace, category_primary, summary, searchable_content,
		   importance_score, created_at, expires_at, access_count, is_permanent_context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(memory_id) DO NOTHING`,
		m.MemoryID, m.Namespace, string(m.Category), m.Summary, m.SearchableContent,
		m.ImportanceScore, formatTime(m.CreatedAt), expiresAt, m.AccessCount, m.IsPermanentContext)
	if err != nil {
		return 0, fmt.Errorf("insert short-term memory: %w", err)
	}
	return insertResult(res)
}

func (s *SQLiteStore) InsertRule(ctx context.Context, r model.Rule) (InsertResult, error) {
	if r.RuleID == "" {
		r.RuleID = s.newID()
	}
	return insertRule(ctx, s.db, r)
}

func insertRule(ctx context.Context, ex execer, r model.Rule) (InsertResult, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO rules_memory (rule_id, namespace, rule_text, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(rule_id) DO NOTHING`,
		r.RuleID, r.Namespace, r.RuleText, formatTime(r.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	return insertResult(res)
}

func (s *SQLiteStore) FindLongTermDuplicate(ctx context.Context, ns, summary, content string) (*model.LongTermMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+longTermColumns+` FROM long_term_memory
		 WHERE namespace = ? AND (fold(summary) = fold(?) OR fold(searchable_content) = fold(?))
		 ORDER BY created_at LIMIT 1`, ns, summary, content)
	m, err := scanLongTerm(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) BumpLongTermAccess(ctx context.Context, memoryID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE long_term_memory SET access_count = access_count + 1 WHERE memory_id = ?`, memoryID)
	if err != nil {
		return fmt.Errorf("bump access: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountShortTerm(ctx context.Context, ns string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM short_term_memory WHERE namespace = ?`, ns).Scan(&n)
	return n, err
}

func (s *SQLiteStore) PruneShortTerm(ctx context.Context, ns string, capacity int) (int, error) {
	if capacity < 0 {
		capacity = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM short_term_memory WHERE memory_id IN (
			SELECT memory_id FROM short_term_memory
			WHERE namespace = ? AND is_permanent_context = 0
			ORDER BY importance_score DESC, created_at DESC
			LIMIT -1 OFFSET ?
		)`, ns, capacity)
	if err != nil {
		return 0, fmt.Errorf("prune short-term: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) PurgeExpiredShortTerm(ctx context.Context, ns string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM short_term_memory
		 WHERE namespace = ? AND is_permanent_context = 0
		   AND expires_at IS NOT NULL AND expires_at <= ?`, ns, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) ListPromotionCandidates(ctx context.Context, ns string, threshold float64, limit int) ([]model.LongTermMemory, error) {
	if limit <= 0 {
		limit = 100
	}
	cats := make([]string, len(model.PromotableCategories))
	args := []any{ns, threshold}
	for i, c := range model.PromotableCategories {
		cats[i] = "?"
		args = append(args, string(c))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+longTermColumns+` FROM long_term_memory
		 WHERE namespace = ? AND importance_score >= ? AND category_primary IN (`+strings.Join(cats, ",")+`)
		 ORDER BY importance_score DESC, created_at DESC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list promotion candidates: %w", err)
	}
	defer rows.Close()
	return collectLongTerm(rows)
}

func (s *SQLiteStore) TopShortTerm(ctx context.Context, ns string, limit int) ([]model.ShortTermMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shortTermColumns+` FROM short_term_memory
		 WHERE namespace = ? AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY importance_score DESC, created_at DESC
		 LIMIT ?`, ns, formatTime(time.Now()), limit)
	if err != nil {
		return nil, fmt.Errorf("top short-term: %w", err)
	}
	defer rows.Close()
	return collectShortTerm(rows)
}

func (s *SQLiteStore) ListLongTerm(ctx context.Context, ns string, limit int) ([]model.LongTermMemory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+longTermColumns+` FROM long_term_memory
		 WHERE namespace = ?
		 ORDER BY importance_score DESC, created_at DESC
		 LIMIT ?`, ns, limit)
	if err != nil {
		return nil, fmt.Errorf("list long-term: %w", err)
	}
	defer rows.Close()
	return collectLongTerm(rows)
}

func (s *SQLiteStore) DeleteChatHistory(ctx context.Context, ns, sessionID string) (int, error) {
	var res sql.Result
	var err error
	if sessionID != "" {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM chat_history WHERE namespace = ? AND session_id = ?`, ns, sessionID)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE namespace = ?`, ns)
	}
	if err != nil {
		return 0, fmt.Errorf("delete chat history: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) DeleteShortTerm(ctx context.Context, ns string) (int, error) {
	return s.deleteNamespace(ctx, "short_term_memory", ns)
}

func (s *SQLiteStore) DeleteLongTerm(ctx context.Context, ns string) (int, error) {
	return s.deleteNamespace(ctx, "long_term_memory", ns)
}

func (s *SQLiteStore) DeleteRules(ctx context.Context, ns string) (int, error) {
	return s.deleteNamespace(ctx, "rules_memory", ns)
}

func (s *SQLiteStore) deleteNamespace(ctx context.Context, table, ns string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE namespace = ?`, ns)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return affected(res)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const (
	longTermColumns = `memory_id, namespace, category_primary, summary, searchable_content, importance_score,
		classification, created_at, access_count, topic, entities_json, keywords_json, content_hash`
	shortTermColumns = `memory_id, namespace, category_primary, summary, searchable_content, importance_score,
		created_at, expires_at, access_count, is_permanent_context`
	chatColumns = `chat_id, session_id, namespace, user_input, ai_output, model, timestamp, tokens_used`
	ruleColumns = `rule_id, namespace, rule_text, created_at`
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLongTerm(row scanner) (model.LongTermMemory, error) {
	var m model.LongTermMemory
	var category, createdAt string
	var classification, topic, entities, keywords, hash sql.NullString
	var importance sql.NullFloat64

	err := row.Scan(
		&m.MemoryID, &m.Namespace, &category, &m.Summary, &m.SearchableContent, &importance,
		&classification, &createdAt, &m.AccessCount, &topic, &entities, &keywords, &hash,
	)
	if err != nil {
		return m, err
	}

	m.Category = model.Category(category)
	m.ImportanceScore = importance.Float64
	m.CreatedAt = parseTime(createdAt)
	m.Classification = classification.String
	m.Topic = topic.String
	m.ContentHash = hash.String
	if entities.Valid {
		json.Unmarshal([]byte(entities.String), &m.Entities)
	}
	if keywords.Valid {
		json.Unmarshal([]byte(keywords.String), &m.Keywords)
	}
	return m, nil
}

func scanShortTerm(row scanner) (model.ShortTermMemory, error) {
	var m model.ShortTermMemory
	var category, createdAt string
	var expiresAt sql.NullString
	var importance sql.NullFloat64

	err := row.Scan(
		&m.MemoryID, &m.Namespace, &category, &m.Summary, &m.SearchableContent, &importance,
		&createdAt, &expiresAt, &m.AccessCount, &m.IsPermanentContext,
	)
	if err != nil {
		return m, err
	}

	m.Category = model.Category(category)
	m.ImportanceScore = importance.Float64
	m.CreatedAt = parseTime(createdAt)
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		m.ExpiresAt = &t
	}
	return m, nil
}

func scanChat(row scanner) (model.ChatExchange, error) {
	var c model.ChatExchange
	var sessionID, mdl sql.NullString
	var ts string
	var tokens sql.NullInt64

	err := row.Scan(&c.ChatID, &sessionID, &c.Namespace, &c.UserInput, &c.AIOutput, &mdl, &ts, &tokens)
	if err != nil {
		return c, err
	}
	c.SessionID = sessionID.String
	c.Model = mdl.String
	c.Timestamp = parseTime(ts)
	if tokens.Valid {
		n := int(tokens.Int64)
		c.TokensUsed = &n
	}
	return c, nil
}

func scanRule(row scanner) (model.Rule, error) {
	var r model.Rule
	var createdAt string
	if err := row.Scan(&r.RuleID, &r.Namespace, &r.RuleText, &createdAt); err != nil {
		return r, err
	}
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

func collectLongTerm(rows *sql.Rows) ([]model.LongTermMemory, error) {
	var out []model.LongTermMemory
	for rows.Next() {
		m, err := scanLongTerm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func collectShortTerm(rows *sql.Rows) ([]model.ShortTermMemory, error) {
	var out []model.ShortTermMemory
	for rows.Next() {
		m, err := scanShortTerm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(model.TimeLayout)
}

// parseTime accepts the canonical layout and plain RFC3339; anything else
// decodes to the zero time.
func parseTime(s string) time.Time {
	if t, err := time.Parse(model.TimeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func jsonList(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	b, _ := json.Marshal(items)
	s := string(b)
	return &s
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}

func insertResult(res sql.Result) (InsertResult, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}
