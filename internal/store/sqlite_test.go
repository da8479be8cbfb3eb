package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/apogeemind/internal/model"
)

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), opts...)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func putShort(t *testing.T, s *SQLiteStore, ns, id string, score float64, created time.Time, permanent bool) {
	t.Helper()
	res, err := s.InsertShortTerm(context.Background(), model.ShortTermMemory{
		MemoryID:           id,
		Namespace:          ns,
		Category:           model.CategoryConsciousContext,
		Summary:            "summary " + id,
		SearchableContent:  "content " + id,
		ImportanceScore:    score,
		CreatedAt:          created,
		IsPermanentContext: permanent,
	})
	if err != nil {
		t.Fatalf("insert short-term %s: %v", id, err)
	}
	if res != Inserted {
		t.Fatalf("insert short-term %s: got %s", id, res)
	}
}

func TestInsertChat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tokens := 42
	c, err := s.InsertChat(ctx, model.ChatExchange{
		SessionID: "sess", Namespace: "ns", UserInput: "hi", AIOutput: "hello", TokensUsed: &tokens,
	})
	if err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	if c.ChatID == "" {
		t.Error("expected non-empty chat id")
	}
	if c.Timestamp.IsZero() {
		t.Error("expected timestamp to be assigned")
	}

	e, err := s.ExportNamespace(ctx, "ns")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(e.ChatHistory) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(e.ChatHistory))
	}
	got := e.ChatHistory[0]
	if got.UserInput != "hi" || got.AIOutput != "hello" || got.SessionID != "sess" {
		t.Errorf("chat not persisted correctly: %+v", got)
	}
	if got.TokensUsed == nil || *got.TokensUsed != 42 {
		t.Errorf("expected tokens_used 42, got %v", got.TokensUsed)
	}
}

func TestInsertLongTermAndDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace:         "ns",
		Category:          model.CategoryPreference,
		Summary:           "Use Ruff.",
		SearchableContent: "I prefer ruff",
		ImportanceScore:   0.65,
		AccessCount:       1,
		Entities:          []string{"pyproject.toml"},
		Keywords:          []string{"python"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.MemoryID == "" {
		t.Fatal("expected memory id")
	}

	dup, err := s.FindLongTermDuplicate(ctx, "ns", "use ruff.", "nope")
	if err != nil {
		t.Fatalf("find duplicate: %v", err)
	}
	if dup == nil || dup.MemoryID != m.MemoryID {
		t.Fatalf("expected duplicate %s, got %+v", m.MemoryID, dup)
	}
	if len(dup.Entities) != 1 || dup.Entities[0] != "pyproject.toml" {
		t.Errorf("entities not round-tripped: %v", dup.Entities)
	}

	// other namespaces never match
	other, err := s.FindLongTermDuplicate(ctx, "other", "use ruff.", "i prefer ruff")
	if err != nil {
		t.Fatalf("find duplicate: %v", err)
	}
	if other != nil {
		t.Errorf("expected no duplicate across namespaces, got %+v", other)
	}

	if err := s.BumpLongTermAccess(ctx, m.MemoryID); err != nil {
		t.Fatalf("bump: %v", err)
	}
	list, _ := s.ListLongTerm(ctx, "ns", 0)
	if len(list) != 1 || list[0].AccessCount != 2 {
		t.Fatalf("expected access_count 2, got %+v", list)
	}
}

func TestFindLongTermDuplicate_UnicodeCase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace:         "ns",
		Category:          model.CategoryContext,
		Summary:           "Ärger vermeiden: Ökonomisch planen.",
		SearchableContent: "Über das Deployment mit Docker Ärger vermeiden: Ökonomisch planen.",
		ImportanceScore:   0.5,
		AccessCount:       1,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	tests := []struct {
		name    string
		summary string
		content string
	}{
		{"summary folded", "ärger vermeiden: ökonomisch planen.", "nope"},
		{"content folded", "nope", "über das deployment mit docker ärger vermeiden: ökonomisch planen."},
		{"upper", "ÄRGER VERMEIDEN: ÖKONOMISCH PLANEN.", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, err := s.FindLongTermDuplicate(ctx, "ns", tt.summary, tt.content)
			if err != nil {
				t.Fatalf("find duplicate: %v", err)
			}
			if dup == nil || dup.MemoryID != m.MemoryID {
				t.Fatalf("expected duplicate %s, got %+v", m.MemoryID, dup)
			}
		})
	}
}

func TestInsertShortTermIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := model.ShortTermMemory{MemoryID: "conscious_x", Namespace: "ns", Category: model.CategoryConsciousContext,
		Summary: "s", SearchableContent: "c", ImportanceScore: 0.7}
	res, err := s.InsertShortTerm(ctx, st)
	if err != nil || res != Inserted {
		t.Fatalf("first insert: %v %s", err, res)
	}
	res, err = s.InsertShortTerm(ctx, st)
	if err != nil || res != AlreadyExists {
		t.Fatalf("second insert: %v %s", err, res)
	}

	if _, err := s.InsertShortTerm(ctx, model.ShortTermMemory{Namespace: "ns"}); err == nil {
		t.Error("expected error for empty memory id")
	}

	n, _ := s.CountShortTerm(ctx, "ns")
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestPruneShortTerm(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	putShort(t, s, "ns", "a", 0.9, base, false)
	putShort(t, s, "ns", "b", 0.5, base.Add(time.Minute), false)
	putShort(t, s, "ns", "c", 0.7, base.Add(2*time.Minute), false)
	putShort(t, s, "ns", "d", 0.5, base.Add(3*time.Minute), false)
	putShort(t, s, "ns", "p", 0.1, base, true)
	putShort(t, s, "other", "o", 0.1, base, false)

	deleted, err := s.PruneShortTerm(ctx, "ns", 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	top, _ := s.TopShortTerm(ctx, "ns", 10)
	var ids []string
	for _, m := range top {
		ids = append(ids, m.MemoryID)
	}
	if fmt.Sprint(ids) != "[a c p]" {
		t.Errorf("expected [a c p] to survive, got %v", ids)
	}

	// other namespaces are untouched
	n, _ := s.CountShortTerm(ctx, "other")
	if n != 1 {
		t.Errorf("expected other namespace untouched, got %d", n)
	}
}

func TestPruneShortTerm_TieBreaksOnCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	putShort(t, s, "ns", "old", 0.5, base, false)
	putShort(t, s, "ns", "new", 0.5, base.Add(time.Second), false)

	if _, err := s.PruneShortTerm(ctx, "ns", 1); err != nil {
		t.Fatalf("prune: %v", err)
	}
	top, _ := s.TopShortTerm(ctx, "ns", 10)
	if len(top) != 1 || top[0].MemoryID != "new" {
		t.Fatalf("expected newest to survive, got %+v", top)
	}
}

func TestPurgeExpiredShortTerm(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	for _, m := range []model.ShortTermMemory{
		{MemoryID: "expired", ExpiresAt: &past},
		{MemoryID: "fresh", ExpiresAt: &future},
		{MemoryID: "pinned", ExpiresAt: &past, IsPermanentContext: true},
	} {
		m.Namespace = "ns"
		m.Category = model.CategoryConsciousContext
		m.ImportanceScore = 0.7
		if _, err := s.InsertShortTerm(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// expired rows are hidden before they are purged
	top, _ := s.TopShortTerm(ctx, "ns", 10)
	if len(top) != 1 || top[0].MemoryID != "fresh" {
		t.Fatalf("expected only fresh visible, got %+v", top)
	}

	n, err := s.PurgeExpiredShortTerm(ctx, "ns", time.Now())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	count, _ := s.CountShortTerm(ctx, "ns")
	if count != 2 {
		t.Errorf("expected 2 rows left, got %d", count)
	}
}

func TestListPromotionCandidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, score := range []float64{0.4, 0.65, 0.9, 0.7} {
		s.InsertLongTerm(ctx, model.LongTermMemory{
			Namespace: "ns", Category: model.CategorySkill,
			Summary: fmt.Sprintf("m%d", i), SearchableContent: "x", ImportanceScore: score,
		})
	}
	s.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace: "other", Category: model.CategorySkill, Summary: "o", SearchableContent: "x", ImportanceScore: 1,
	})

	got, err := s.ListPromotionCandidates(ctx, "ns", 0.65, 0)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ImportanceScore != 0.9 || got[2].ImportanceScore != 0.65 {
		t.Errorf("expected descending importance, got %v %v", got[0].ImportanceScore, got[2].ImportanceScore)
	}
}

func TestInsertRule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := model.Rule{RuleID: "rule_1", Namespace: "ns", RuleText: "never commit secrets"}
	if res, err := s.InsertRule(ctx, r); err != nil || res != Inserted {
		t.Fatalf("insert rule: %v %s", err, res)
	}
	if res, err := s.InsertRule(ctx, r); err != nil || res != AlreadyExists {
		t.Fatalf("re-insert rule: %v %s", err, res)
	}
}

func TestDeleteNamespaceTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.InsertChat(ctx, model.ChatExchange{SessionID: "a", Namespace: "ns", UserInput: "1", AIOutput: "1"})
	s.InsertChat(ctx, model.ChatExchange{SessionID: "b", Namespace: "ns", UserInput: "2", AIOutput: "2"})
	s.InsertChat(ctx, model.ChatExchange{SessionID: "a", Namespace: "other", UserInput: "3", AIOutput: "3"})

	n, err := s.DeleteChatHistory(ctx, "ns", "a")
	if err != nil || n != 1 {
		t.Fatalf("delete session: %v %d", err, n)
	}
	n, _ = s.DeleteChatHistory(ctx, "ns", "")
	if n != 1 {
		t.Errorf("expected 1 remaining chat deleted, got %d", n)
	}
	e, _ := s.ExportNamespace(ctx, "other")
	if len(e.ChatHistory) != 1 {
		t.Errorf("expected other namespace untouched")
	}

	putShort(t, s, "ns", "x", 0.5, time.Now(), false)
	s.InsertLongTerm(ctx, model.LongTermMemory{Namespace: "ns", Category: model.CategoryRule, Summary: "s", SearchableContent: "c"})
	s.InsertRule(ctx, model.Rule{Namespace: "ns", RuleText: "r"})

	if n, _ := s.DeleteShortTerm(ctx, "ns"); n != 1 {
		t.Errorf("expected 1 short-term deleted, got %d", n)
	}
	if n, _ := s.DeleteLongTerm(ctx, "ns"); n != 1 {
		t.Errorf("expected 1 long-term deleted, got %d", n)
	}
	if n, _ := s.DeleteRules(ctx, "ns"); n != 1 {
		t.Errorf("expected 1 rule deleted, got %d", n)
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.InsertChat(ctx, model.ChatExchange{Namespace: "ns", UserInput: "q", AIOutput: "a"})

	rows, err := s.Execute(ctx, `SELECT namespace, user_input FROM chat_history WHERE namespace = ?`, "ns")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["user_input"] != "q" {
		t.Errorf("expected user_input q, got %v", rows[0]["user_input"])
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.InsertLongTerm(context.Background(), model.LongTermMemory{
		Namespace: "ns", Category: model.CategoryContext, Summary: "kept", SearchableContent: "kept",
	})
	s.Close()

	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	v, err := s.schemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, v)
	}
	list, _ := s.ListLongTerm(context.Background(), "ns", 0)
	if len(list) != 1 {
		t.Errorf("expected data to survive reopen, got %d rows", len(list))
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
