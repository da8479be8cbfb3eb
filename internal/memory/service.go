// Package memory orchestrates recording, promotion and retrieval over the
// two memory tiers for one namespace.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/apogeemind/internal/config"
	"github.com/rcliao/apogeemind/internal/heuristics"
	"github.com/rcliao/apogeemind/internal/model"
	"github.com/rcliao/apogeemind/internal/prompt"
	"github.com/rcliao/apogeemind/internal/promotion"
	"github.com/rcliao/apogeemind/internal/redact"
	"github.com/rcliao/apogeemind/internal/retrieval"
	"github.com/rcliao/apogeemind/internal/store"
)

const (
	ConsciousLabel = "Conscious Working Memory"
	AutoLabel      = "Relevant Memories"

	consciousLimit = 10
	autoLimit      = 5

	// RuleIDPrefix is prepended to the long-term ID for extracted rules.
	RuleIDPrefix = "rule_"
)

// Metadata is optional per-exchange information.
type Metadata struct {
	SessionID  string
	TokensUsed *int
}

// ClearCounts reports rows removed by ClearMemory.
type ClearCounts struct {
	ShortTerm int `json:"short_term"`
	LongTerm  int `json:"long_term"`
	Rules     int `json:"rules"`
}

// Service is the single writer of both memory tiers for its namespace.
type Service struct {
	cfg       config.Config
	st        store.Store
	logger    *slog.Logger
	sessionID string

	proc     *heuristics.Processor
	redactor *redact.Redactor
	engine   *retrieval.Engine
	agent    *promotion.Agent
	builder  prompt.Builder
}

// NewService validates cfg and wires the components. With conscious ingest
// on, one promotion pass runs before it returns; a failed pass is logged.
// The caller keeps ownership of st.
func NewService(cfg config.Config, st store.Store, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("ns", cfg.Namespace)

	s := &Service{
		cfg:       cfg,
		st:        st,
		logger:    logger,
		sessionID: uuid.NewString(),
		proc:      heuristics.NewProcessor(cfg.PromotionThreshold),
		redactor:  redact.New(),
		engine:    retrieval.New(st, logger),
		agent: promotion.NewAgent(st, promotion.Options{
			Capacity:  cfg.STMCapacity,
			Threshold: cfg.PromotionThreshold,
			TTL:       cfg.TTL(),
		}, logger),
		builder: prompt.NewBuilder(),
	}

	if cfg.ConsciousIngest {
		if _, err := s.agent.RunInitialPromotion(context.Background(), cfg.Namespace); err != nil {
			logger.Warn("initial promotion failed", "error", err)
		}
	}
	return s, nil
}

// Namespace is the namespace every call on s reads and writes.
func (s *Service) Namespace() string { return s.cfg.Namespace }

// SessionID is the session recorded for exchanges without an explicit one.
func (s *Service) SessionID() string { return s.sessionID }

// Record stores one exchange and derives a long-term memory from it. A
// duplicate of an existing memory only bumps its access count. Eligible
// memories are promoted right away when conscious ingest is on; promotion
// problems are logged and never fail the call.
func (s *Service) Record(ctx context.Context, userText, assistantText, modelName string, meta Metadata) (string, error) {
	userText = s.redactor.Redact(userText)
	assistantText = s.redactor.Redact(assistantText)

	sessionID := meta.SessionID
	if sessionID == "" {
		sessionID = s.sessionID
	}
	chat, err := s.st.InsertChat(ctx, model.ChatExchange{
		SessionID:  sessionID,
		Namespace:  s.cfg.Namespace,
		UserInput:  userText,
		AIOutput:   assistantText,
		Model:      modelName,
		TokensUsed: meta.TokensUsed,
	})
	if err != nil {
		return "", err
	}

	c := s.proc.Process(userText, assistantText)

	dup, err := s.st.FindLongTermDuplicate(ctx, s.cfg.Namespace, c.Summary, c.SearchableContent)
	if err != nil {
		return chat.ChatID, err
	}
	if dup != nil {
		if err := s.st.BumpLongTermAccess(ctx, dup.MemoryID); err != nil {
			return chat.ChatID, err
		}
		s.logger.Debug("duplicate memory", "memory_id", dup.MemoryID)
		return chat.ChatID, nil
	}

	ltm, err := s.st.InsertLongTerm(ctx, model.LongTermMemory{
		Namespace:         s.cfg.Namespace,
		Category:          c.Category,
		Summary:           c.Summary,
		SearchableContent: c.SearchableContent,
		ImportanceScore:   c.ImportanceScore,
		Classification:    c.Classification,
		AccessCount:       1,
		Entities:          c.Entities,
		Keywords:          c.Keywords,
		ContentHash:       c.ContentFingerprint,
	})
	if err != nil {
		return chat.ChatID, err
	}

	if c.Category == model.CategoryRule {
		if _, err := s.st.InsertRule(ctx, model.Rule{
			RuleID:    RuleIDPrefix + ltm.MemoryID,
			Namespace: s.cfg.Namespace,
			RuleText:  c.Summary,
			CreatedAt: ltm.CreatedAt,
		}); err != nil {
			s.logger.Warn("insert rule", "memory_id", ltm.MemoryID, "error", err)
		}
	}

	if c.PromotionEligible && bool(s.cfg.ConsciousIngest) {
		if _, err := s.agent.Promote(ctx, ltm); err != nil {
			s.logger.Warn("promote on record", "memory_id", ltm.MemoryID, "error", err)
		}
		s.agent.Enforce(ctx, s.cfg.Namespace)
	}

	s.logger.Debug("recorded exchange", "chat_id", chat.ChatID, "memory_id", ltm.MemoryID,
		"category", c.Category, "importance", c.ImportanceScore, "eligible", c.PromotionEligible)
	return chat.ChatID, nil
}

// RetrieveContext returns up to limit ranked hits for query.
func (s *Service) RetrieveContext(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	return s.engine.Search(ctx, s.cfg.Namespace, query, limit)
}

// ConsciousPrompt renders the top of the short-term tier.
func (s *Service) ConsciousPrompt(ctx context.Context) (string, error) {
	rows, err := s.st.TopShortTerm(ctx, s.cfg.Namespace, consciousLimit)
	if err != nil {
		return "", err
	}
	hits := make([]model.SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, r.Hit())
	}
	return s.builder.Build(hits, ConsciousLabel, s.cfg.Namespace), nil
}

// AutoPrompt renders the memories most relevant to query. It returns "" when
// auto ingest is off.
func (s *Service) AutoPrompt(ctx context.Context, query string) (string, error) {
	if !s.cfg.AutoIngest {
		return "", nil
	}
	hits, err := s.RetrieveContext(ctx, query, autoLimit)
	if err != nil {
		return "", err
	}
	return s.FormatAuto(hits), nil
}

// FormatAuto renders already retrieved hits as the auto-ingest block.
func (s *Service) FormatAuto(hits []model.SearchHit) string {
	return s.builder.Build(hits, AutoLabel, s.cfg.Namespace)
}

// RunPromotion runs one promotion pass now.
func (s *Service) RunPromotion(ctx context.Context) (int, error) {
	return s.agent.RunInitialPromotion(ctx, s.cfg.Namespace)
}

// StartScheduler starts background promotion. interval <= 0 uses the
// configured interval.
func (s *Service) StartScheduler(interval time.Duration) bool {
	if interval <= 0 {
		interval = s.cfg.SchedulerInterval
	}
	return s.agent.Start(s.cfg.Namespace, interval)
}

// StopScheduler stops the background loop. It is a no-op when idle.
func (s *Service) StopScheduler() error {
	return s.agent.Stop()
}

// SchedulerRunning reports whether the background loop is active.
func (s *Service) SchedulerRunning() bool {
	return s.agent.Running()
}

// ClearHistory deletes chat history, limited to one session when sessionID
// is set.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) (int, error) {
	return s.st.DeleteChatHistory(ctx, s.cfg.Namespace, sessionID)
}

// ClearMemory deletes one tier, or both when tier is empty. Clearing long-term
// memory also clears extracted rules.
func (s *Service) ClearMemory(ctx context.Context, tier model.Tier) (ClearCounts, error) {
	var counts ClearCounts
	var err error

	switch tier {
	case model.TierShortTerm, model.TierLongTerm, "":
	default:
		return counts, fmt.Errorf("unknown memory tier %q", tier)
	}

	if tier == "" || tier == model.TierShortTerm {
		if counts.ShortTerm, err = s.st.DeleteShortTerm(ctx, s.cfg.Namespace); err != nil {
			return counts, err
		}
	}
	if tier == "" || tier == model.TierLongTerm {
		if counts.LongTerm, err = s.st.DeleteLongTerm(ctx, s.cfg.Namespace); err != nil {
			return counts, err
		}
		if counts.Rules, err = s.st.DeleteRules(ctx, s.cfg.Namespace); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// Export dumps every table for the namespace.
func (s *Service) Export(ctx context.Context) (*model.Export, error) {
	return s.st.ExportNamespace(ctx, s.cfg.Namespace)
}

// Import loads a dump into the service namespace and re-applies capacity.
func (s *Service) Import(ctx context.Context, e *model.Export) (int, error) {
	n, err := s.st.ImportNamespace(ctx, s.cfg.Namespace, e)
	if err != nil {
		return n, err
	}
	s.agent.Enforce(ctx, s.cfg.Namespace)
	return n, nil
}

// Close stops the scheduler. The store is left open.
func (s *Service) Close() error {
	return s.StopScheduler()
}
