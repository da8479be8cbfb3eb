// Package store provides the memory persistence interface and SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/rcliao/apogeemind/internal/model"
)

// InsertResult reports the outcome of an insert-if-absent.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

func (r InsertResult) String() string {
	if r == AlreadyExists {
		return "already_exists"
	}
	return "inserted"
}

// SearchParams holds parameters for searching both memory tiers.
type SearchParams struct {
	NS    string
	Query string
	Limit int // per tier
}

// Store defines the memory persistence interface. Implementations must be
// safe for use by one foreground caller and the promotion scheduler at once.
type Store interface {
	// Execute runs a parameterized statement and returns rows as name->value maps.
	Execute(ctx context.Context, query string, args ...any) ([]map[string]any, error)

	// InsertChat appends a chat exchange. ChatID and Timestamp are assigned when empty.
	InsertChat(ctx context.Context, c model.ChatExchange) (model.ChatExchange, error)

	// InsertLongTerm stores a new long-term memory. MemoryID and CreatedAt are
	// assigned when empty.
	InsertLongTerm(ctx context.Context, m model.LongTermMemory) (model.LongTermMemory, error)

	// InsertShortTerm inserts m unless a row with the same MemoryID exists.
	InsertShortTerm(ctx context.Context, m model.ShortTermMemory) (InsertResult, error)

	// InsertRule inserts r unless a row with the same RuleID exists.
	InsertRule(ctx context.Context, r model.Rule) (InsertResult, error)

	// FindLongTermDuplicate returns the first long-term memory in ns whose
	// summary or content equals the given values ignoring case, or nil.
	FindLongTermDuplicate(ctx context.Context, ns, summary, content string) (*model.LongTermMemory, error)

	// BumpLongTermAccess increments access_count.
	BumpLongTermAccess(ctx context.Context, memoryID string) error

	CountShortTerm(ctx context.Context, ns string) (int, error)

	// PruneShortTerm keeps at most capacity non-permanent rows in ns, evicting
	// by (importance asc, created asc). Returns the number deleted.
	PruneShortTerm(ctx context.Context, ns string, capacity int) (int, error)

	// PurgeExpiredShortTerm deletes non-permanent rows that expired before now.
	PurgeExpiredShortTerm(ctx context.Context, ns string, now time.Time) (int, error)

	// ListPromotionCandidates returns long-term memories at or above threshold
	// in a promotable category, best first.
	ListPromotionCandidates(ctx context.Context, ns string, threshold float64, limit int) ([]model.LongTermMemory, error)

	// TopShortTerm returns unexpired short-term rows by (importance desc, created desc).
	TopShortTerm(ctx context.Context, ns string, limit int) ([]model.ShortTermMemory, error)

	ListLongTerm(ctx context.Context, ns string, limit int) ([]model.LongTermMemory, error)

	// FTSEnabled reports whether SearchFTS is usable.
	FTSEnabled() bool
	SearchFTS(ctx context.Context, p SearchParams) ([]model.SearchHit, error)
	SearchLike(ctx context.Context, p SearchParams) ([]model.SearchHit, error)

	// DeleteChatHistory removes chats in ns, or only one session when sessionID is set.
	DeleteChatHistory(ctx context.Context, ns, sessionID string) (int, error)
	DeleteShortTerm(ctx context.Context, ns string) (int, error)
	DeleteLongTerm(ctx context.Context, ns string) (int, error)
	DeleteRules(ctx context.Context, ns string) (int, error)

	ExportNamespace(ctx context.Context, ns string) (*model.Export, error)
	ImportNamespace(ctx context.Context, ns string, e *model.Export) (int, error)

	Stats(ctx context.Context, dbPath string) (*Stats, error)
	ListNamespaces(ctx context.Context) ([]NamespaceStats, error)

	// Close closes the store.
	Close() error
}
