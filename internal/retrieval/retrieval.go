// Package retrieval answers "what is relevant to this query" across both
// memory tiers.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/rcliao/apogeemind/internal/model"
	"github.com/rcliao/apogeemind/internal/store"
)

// DefaultLimit is used when Search is called with limit <= 0.
const DefaultLimit = 5

// candidateFactor is how many raw candidates per tier are requested for each
// result slot.
const candidateFactor = 3

// Searcher is the part of the persistence port the engine reads through.
type Searcher interface {
	FTSEnabled() bool
	SearchFTS(ctx context.Context, p store.SearchParams) ([]model.SearchHit, error)
	SearchLike(ctx context.Context, p store.SearchParams) ([]model.SearchHit, error)
}

type strategy interface {
	name() string
	candidates(ctx context.Context, p store.SearchParams) ([]model.SearchHit, error)
}

type ftsStrategy struct{ st Searcher }

func (f ftsStrategy) name() string { return "fts" }

func (f ftsStrategy) candidates(ctx context.Context, p store.SearchParams) ([]model.SearchHit, error) {
	return f.st.SearchFTS(ctx, p)
}

type likeStrategy struct{ st Searcher }

func (l likeStrategy) name() string { return "like" }

func (l likeStrategy) candidates(ctx context.Context, p store.SearchParams) ([]model.SearchHit, error) {
	return l.st.SearchLike(ctx, p)
}

// Engine merges, reranks and truncates hits from both tiers.
type Engine struct {
	st     Searcher
	logger *slog.Logger
}

// New returns an Engine reading through st.
func New(st Searcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{st: st, logger: logger}
}

// Search returns at most limit hits for query in ns. Short-term hits rank
// above long-term ones; within a tier, higher importance then newer wins.
func (e *Engine) Search(ctx context.Context, ns, query string, limit int) ([]model.SearchHit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	p := store.SearchParams{NS: ns, Query: query, Limit: limit * candidateFactor}

	s := e.pick(query)
	hits, err := s.candidates(ctx, p)
	if err != nil && s.name() == "fts" {
		e.logger.Warn("fts search failed, falling back to like", "ns", ns, "error", err)
		hits, err = likeStrategy{e.st}.candidates(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	Rerank(hits)
	hits = Dedup(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (e *Engine) pick(query string) strategy {
	if e.st.FTSEnabled() && strings.TrimSpace(query) != "" {
		return ftsStrategy{e.st}
	}
	return likeStrategy{e.st}
}

// Rerank sorts hits in place by (tier, importance desc, created_at desc).
func Rerank(hits []model.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if ta, tb := tierRank(a.Tier), tierRank(b.Tier); ta != tb {
			return ta < tb
		}
		if a.ImportanceScore != b.ImportanceScore {
			return a.ImportanceScore > b.ImportanceScore
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// Dedup drops repeated (memory_id, summary) pairs, keeping the first.
func Dedup(hits []model.SearchHit) []model.SearchHit {
	type key struct{ id, summary string }
	seen := make(map[key]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		k := key{h.MemoryID, h.Summary}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, h)
	}
	return out
}

func tierRank(t model.Tier) int {
	if t == model.TierShortTerm {
		return 0
	}
	return 1
}
