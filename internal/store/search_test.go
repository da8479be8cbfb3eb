package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/apogeemind/internal/model"
)

func seedSearch(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	s.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace: "test", Category: model.CategorySkill,
		Summary: "Go has goroutines", SearchableContent: "Go is a compiled language with goroutines", ImportanceScore: 0.6,
	})
	s.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace: "test", Category: model.CategorySkill,
		Summary: "Python is interpreted", SearchableContent: "Python is an interpreted language", ImportanceScore: 0.8,
	})
	s.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace: "other", Category: model.CategorySkill,
		Summary: "Rust borrow checker", SearchableContent: "Rust has a borrow checker language", ImportanceScore: 0.9,
	})
	s.InsertShortTerm(ctx, model.ShortTermMemory{
		MemoryID: "conscious_1", Namespace: "test", Category: model.CategoryConsciousContext,
		Summary: "Prefer the language server", SearchableContent: "prefer the language server", ImportanceScore: 0.7,
	})
}

func TestSearchFTS_Basic(t *testing.T) {
	s := newTestStore(t)
	if !s.FTSEnabled() {
		t.Skip("fts5 unavailable")
	}
	seedSearch(t, s)
	ctx := context.Background()

	hits, err := s.SearchFTS(ctx, SearchParams{NS: "test", Query: "language", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Tier != model.TierShortTerm {
		t.Errorf("expected short-term hits first, got %s", hits[0].Tier)
	}
	if hits[1].Summary != "Python is interpreted" {
		t.Errorf("expected long-term hits by importance, got %q", hits[1].Summary)
	}

	// OR semantics across tokens
	hits, _ = s.SearchFTS(ctx, SearchParams{NS: "test", Query: "goroutines interpreted", Limit: 10})
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}

	hits, _ = s.SearchFTS(ctx, SearchParams{NS: "test", Query: "javascript", Limit: 10})
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits, got %d", len(hits))
	}
}

func TestSearchFTS_PunctuationOnlyQuery(t *testing.T) {
	s := newTestStore(t)
	if !s.FTSEnabled() {
		t.Skip("fts5 unavailable")
	}
	seedSearch(t, s)

	hits, err := s.SearchFTS(context.Background(), SearchParams{NS: "test", Query: `"(*)" -- :`, Limit: 10})
	if err != nil {
		t.Fatalf("expected no error for punctuation, got %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits, got %d", len(hits))
	}
}

func TestSearchFTS_TracksDeletes(t *testing.T) {
	s := newTestStore(t)
	if !s.FTSEnabled() {
		t.Skip("fts5 unavailable")
	}
	seedSearch(t, s)
	ctx := context.Background()

	if _, err := s.DeleteLongTerm(ctx, "test"); err != nil {
		t.Fatal(err)
	}
	hits, err := s.SearchFTS(ctx, SearchParams{NS: "test", Query: "goroutines", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected deleted rows gone from index, got %d", len(hits))
	}
}

func TestSearchFTS_Disabled(t *testing.T) {
	s := newTestStore(t, WithoutFTS())
	if s.FTSEnabled() {
		t.Fatal("expected fts disabled")
	}
	if _, err := s.SearchFTS(context.Background(), SearchParams{NS: "test", Query: "x"}); err == nil {
		t.Fatal("expected error when fts is disabled")
	}
}

func TestSearchLike(t *testing.T) {
	s := newTestStore(t, WithoutFTS())
	seedSearch(t, s)
	ctx := context.Background()

	hits, err := s.SearchLike(ctx, SearchParams{NS: "test", Query: "language", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}

	// empty query matches the whole namespace
	hits, _ = s.SearchLike(ctx, SearchParams{NS: "test", Query: "", Limit: 10})
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits for empty query, got %d", len(hits))
	}

	// wildcards are literal
	hits, _ = s.SearchLike(ctx, SearchParams{NS: "test", Query: "%", Limit: 10})
	if len(hits) != 0 {
		t.Fatalf("expected %% to match literally, got %d", len(hits))
	}

	// per-tier limit
	hits, _ = s.SearchLike(ctx, SearchParams{NS: "test", Query: "language", Limit: 1})
	if len(hits) != 2 {
		t.Fatalf("expected one hit per tier, got %d", len(hits))
	}
}

func TestSearchLike_ExcludesExpiredShortTerm(t *testing.T) {
	s := newTestStore(t, WithoutFTS())
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	s.InsertShortTerm(ctx, model.ShortTermMemory{
		MemoryID: "gone", Namespace: "test", Category: model.CategoryConsciousContext,
		Summary: "stale note", SearchableContent: "stale note", ImportanceScore: 0.9, ExpiresAt: &past,
	})

	hits, err := s.SearchLike(ctx, SearchParams{NS: "test", Query: "stale"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected expired row hidden, got %d", len(hits))
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"hello", `"hello"`},
		{"ruff black", `"ruff" OR "black"`},
		{`say "hi"`, `"say" OR """hi"""`},
		{"-- ( )", ""},
		{"app/main.py", `"app/main.py"`},
	}
	for _, tt := range tests {
		if got := FTSQuery(tt.in); got != tt.want {
			t.Errorf("FTSQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seedSearch(t, s)
	s.InsertChat(context.Background(), model.ChatExchange{Namespace: "test", UserInput: "a", AIOutput: "b"})

	stats, err := s.Stats(context.Background(), dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LongTerm != 3 || stats.ShortTerm != 1 || stats.ChatHistory != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if len(stats.Namespaces) != 2 {
		t.Fatalf("expected 2 namespaces, got %d", len(stats.Namespaces))
	}
	if stats.Namespaces[1].NS != "test" || stats.Namespaces[1].LongTerm != 2 || stats.Namespaces[1].Chats != 1 {
		t.Errorf("unexpected namespace stats: %+v", stats.Namespaces[1])
	}
	if stats.DBSizeBytes == 0 {
		t.Fatal("expected non-zero db size")
	}
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	s1, _ := NewSQLiteStore(filepath.Join(dir, "src.db"))
	defer s1.Close()
	ctx := context.Background()

	seedSearch(t, s1)
	s1.InsertChat(ctx, model.ChatExchange{Namespace: "test", UserInput: "a", AIOutput: "b"})
	s1.InsertRule(ctx, model.Rule{Namespace: "test", RuleText: "always test"})

	exported, err := s1.ExportNamespace(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(exported.LongTermMemory) != 2 || len(exported.ShortTermMemory) != 1 ||
		len(exported.ChatHistory) != 1 || len(exported.RulesMemory) != 1 {
		t.Fatalf("unexpected export: %+v", exported)
	}

	s2, _ := NewSQLiteStore(filepath.Join(dir, "dst.db"))
	defer s2.Close()

	n, err := s2.ImportNamespace(ctx, "", exported)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 imported, got %d", n)
	}

	// re-import inserts nothing
	n, _ = s2.ImportNamespace(ctx, "", exported)
	if n != 0 {
		t.Fatalf("expected 0 on re-import, got %d", n)
	}

	// namespace override
	n, _ = s2.ImportNamespace(ctx, "copy", &model.Export{
		Namespace: "test",
		LongTermMemory: []model.LongTermMemory{{
			MemoryID: "fresh", Category: model.CategoryContext, Summary: "x", SearchableContent: "x",
		}},
	})
	if n != 1 {
		t.Fatalf("expected 1 imported, got %d", n)
	}
	mems, _ := s2.ListLongTerm(ctx, "copy", 0)
	if len(mems) != 1 {
		t.Fatalf("expected 1 mem in overridden namespace, got %d", len(mems))
	}
}

func TestImportNamespace_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// rules are imported last; rejecting them must undo the earlier tables
	if _, err := s.db.ExecContext(ctx,
		`CREATE TRIGGER rules_reject BEFORE INSERT ON rules_memory BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatal(err)
	}

	n, err := s.ImportNamespace(ctx, "", &model.Export{
		Namespace:   "test",
		ChatHistory: []model.ChatExchange{{ChatID: "c1", SessionID: "s", UserInput: "a", AIOutput: "b"}},
		LongTermMemory: []model.LongTermMemory{{
			MemoryID: "l1", Category: model.CategoryContext, Summary: "x", SearchableContent: "x",
		}},
		ShortTermMemory: []model.ShortTermMemory{{
			MemoryID: "conscious_l1", Category: model.CategoryContext, Summary: "x", SearchableContent: "x",
		}},
		RulesMemory: []model.Rule{{RuleID: "r1", RuleText: "always test"}},
	})
	if err == nil {
		t.Fatal("expected import error")
	}
	if n != 0 {
		t.Errorf("expected 0 imported, got %d", n)
	}

	e, err := s.ExportNamespace(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(e.ChatHistory)+len(e.LongTermMemory)+len(e.ShortTermMemory)+len(e.RulesMemory) != 0 {
		t.Fatalf("expected nothing committed, got %+v", e)
	}
}
