// Package promotion copies high-value long-term memories into the
// capacity-bounded short-term tier, on demand and on an interval.
package promotion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/apogeemind/internal/model"
	"github.com/rcliao/apogeemind/internal/store"
)

const (
	DefaultInterval = 6 * time.Hour
	MinInterval     = 60 * time.Second

	// CandidateLimit bounds one promotion pass.
	CandidateLimit = 100

	// IDPrefix is prepended to the long-term ID to form the short-term ID,
	// which makes re-promotion a no-op.
	IDPrefix = "conscious_"

	stopTimeout = 5 * time.Second
)

// ErrStopTimeout is returned by Stop when the loop did not exit in time.
var ErrStopTimeout = errors.New("promotion scheduler did not stop in time")

// Store is the part of the persistence port the agent needs.
type Store interface {
	ListPromotionCandidates(ctx context.Context, ns string, threshold float64, limit int) ([]model.LongTermMemory, error)
	InsertShortTerm(ctx context.Context, m model.ShortTermMemory) (store.InsertResult, error)
	PurgeExpiredShortTerm(ctx context.Context, ns string, now time.Time) (int, error)
	PruneShortTerm(ctx context.Context, ns string, capacity int) (int, error)
}

// Options controls promotion policy.
type Options struct {
	Capacity  int
	Threshold float64
	// TTL, when positive, sets expires_at on non-permanent promoted rows.
	TTL time.Duration
}

// Agent runs promotion passes and owns at most one background loop.
type Agent struct {
	st     Store
	opts   Options
	logger *slog.Logger

	minInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAgent returns an Agent. A nil logger uses slog.Default().
func NewAgent(st Store, opts Options, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{st: st, opts: opts, logger: logger, minInterval: MinInterval}
}

// ShortTermFrom builds the promoted short-term row for a long-term memory.
func ShortTermFrom(m model.LongTermMemory, now time.Time, ttl time.Duration) model.ShortTermMemory {
	st := model.ShortTermMemory{
		MemoryID:           IDPrefix + m.MemoryID,
		Namespace:          m.Namespace,
		Category:           model.CategoryConsciousContext,
		Summary:            m.Summary,
		SearchableContent:  m.SearchableContent,
		ImportanceScore:    m.ImportanceScore,
		CreatedAt:          now,
		IsPermanentContext: m.Category.IsPermanent(),
	}
	if ttl > 0 && !st.IsPermanentContext {
		exp := now.Add(ttl)
		st.ExpiresAt = &exp
	}
	return st
}

// Promote inserts the short-term copy of m. An existing copy is left alone.
func (a *Agent) Promote(ctx context.Context, m model.LongTermMemory) (store.InsertResult, error) {
	return a.st.InsertShortTerm(ctx, ShortTermFrom(m, time.Now(), a.opts.TTL))
}

// Enforce purges expired rows and prunes ns back to capacity. Failures are
// logged, never returned.
func (a *Agent) Enforce(ctx context.Context, ns string) {
	if n, err := a.st.PurgeExpiredShortTerm(ctx, ns, time.Now()); err != nil {
		a.logger.Warn("purge expired short-term", "ns", ns, "error", err)
	} else if n > 0 {
		a.logger.Debug("purged expired short-term", "ns", ns, "count", n)
	}
	if n, err := a.st.PruneShortTerm(ctx, ns, a.opts.Capacity); err != nil {
		a.logger.Warn("prune short-term", "ns", ns, "error", err)
	} else if n > 0 {
		a.logger.Debug("pruned short-term", "ns", ns, "count", n)
	}
}

// RunInitialPromotion promotes every eligible long-term memory in ns that is
// not already in the short-term tier, then enforces capacity once. It returns
// the number of rows inserted. Only a failed candidate query is an error.
func (a *Agent) RunInitialPromotion(ctx context.Context, ns string) (int, error) {
	candidates, err := a.st.ListPromotionCandidates(ctx, ns, a.opts.Threshold, CandidateLimit)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, m := range candidates {
		res, err := a.Promote(ctx, m)
		if err != nil {
			a.logger.Warn("promote memory", "ns", ns, "memory_id", m.MemoryID, "error", err)
			continue
		}
		if res == store.Inserted {
			promoted++
		}
	}

	a.Enforce(ctx, ns)
	a.logger.Info("promotion pass", "ns", ns, "candidates", len(candidates), "promoted", promoted)
	return promoted, nil
}

// Start launches the background loop for ns. The first pass runs
// immediately. Intervals <= 0 use DefaultInterval and shorter ones are raised
// to the minimum. Returns false when a loop is already running.
func (a *Agent) Start(ns string, interval time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return false
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < a.minInterval {
		interval = a.minInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel, a.done = cancel, done

	go a.loop(ctx, ns, interval, done)
	a.logger.Info("promotion scheduler started", "ns", ns, "interval", interval.String())
	return true
}

func (a *Agent) loop(ctx context.Context, ns string, interval time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := a.RunInitialPromotion(ctx, ns); err != nil && ctx.Err() == nil {
			a.logger.Error("scheduled promotion", "ns", ns, "error", err)
		}
		timer.Reset(interval)
	}
}

// Stop cancels the loop and waits for it to exit. It is safe to call from
// any goroutine and when nothing is running.
func (a *Agent) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		a.logger.Info("promotion scheduler stopped")
		return nil
	case <-time.After(stopTimeout):
		return ErrStopTimeout
	}
}

// Running reports whether a background loop is live.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}
