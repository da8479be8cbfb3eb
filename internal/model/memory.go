// Package model defines the core memory data types.
package model

import "time"

// TimeLayout is the canonical stored timestamp format. It is fixed width and
// UTC, so lexicographic order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Category is the primary classification of a derived memory.
type Category string

const (
	CategoryPreference Category = "preference"
	CategoryRule       Category = "rule"
	CategorySkill      Category = "skill"
	CategoryContext    Category = "context"

	// CategoryConsciousContext tags every promoted short-term row.
	CategoryConsciousContext Category = "conscious_context"
)

// IsPermanent reports whether promoted memories of this category are exempt
// from capacity eviction.
func (c Category) IsPermanent() bool {
	return c == CategoryPreference || c == CategoryRule
}

// PromotableCategories are the long-term categories considered for promotion.
var PromotableCategories = []Category{
	CategoryPreference,
	CategoryRule,
	CategorySkill,
	CategoryContext,
}

// ClassificationConsciousInfo marks preference and rule memories.
const ClassificationConsciousInfo = "conscious-info"

// Tier identifies which memory tier a row lives in.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
)

// ChatExchange is one append-only user/assistant exchange.
type ChatExchange struct {
	ChatID     string    `json:"chat_id" yaml:"chat_id"`
	SessionID  string    `json:"session_id" yaml:"session_id"`
	Namespace  string    `json:"namespace" yaml:"namespace"`
	UserInput  string    `json:"user_input" yaml:"user_input"`
	AIOutput   string    `json:"ai_output" yaml:"ai_output"`
	Model      string    `json:"model,omitempty" yaml:"model,omitempty"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	TokensUsed *int      `json:"tokens_used,omitempty" yaml:"tokens_used,omitempty"`
}

// LongTermMemory is a durable derived memory.
type LongTermMemory struct {
	MemoryID          string    `json:"memory_id" yaml:"memory_id"`
	Namespace         string    `json:"namespace" yaml:"namespace"`
	Category          Category  `json:"category_primary" yaml:"category_primary"`
	Summary           string    `json:"summary" yaml:"summary"`
	SearchableContent string    `json:"searchable_content" yaml:"searchable_content"`
	ImportanceScore   float64   `json:"importance_score" yaml:"importance_score"`
	Classification    string    `json:"classification,omitempty" yaml:"classification,omitempty"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	AccessCount       int       `json:"access_count" yaml:"access_count"`
	Topic             string    `json:"topic,omitempty" yaml:"topic,omitempty"`
	Entities          []string  `json:"entities,omitempty" yaml:"entities,omitempty"`
	Keywords          []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	ContentHash       string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
}

// Hit returns the row as a long-term search hit.
func (m LongTermMemory) Hit() SearchHit {
	return SearchHit{
		Tier:              TierLongTerm,
		MemoryID:          m.MemoryID,
		Namespace:         m.Namespace,
		Category:          m.Category,
		Summary:           m.Summary,
		SearchableContent: m.SearchableContent,
		ImportanceScore:   m.ImportanceScore,
		CreatedAt:         m.CreatedAt,
		AccessCount:       m.AccessCount,
	}
}

// ShortTermMemory is a row of the capacity-bounded working set.
type ShortTermMemory struct {
	MemoryID           string     `json:"memory_id" yaml:"memory_id"`
	Namespace          string     `json:"namespace" yaml:"namespace"`
	Category           Category   `json:"category_primary" yaml:"category_primary"`
	Summary            string     `json:"summary" yaml:"summary"`
	SearchableContent  string     `json:"searchable_content" yaml:"searchable_content"`
	ImportanceScore    float64    `json:"importance_score" yaml:"importance_score"`
	CreatedAt          time.Time  `json:"created_at" yaml:"created_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	AccessCount        int        `json:"access_count" yaml:"access_count"`
	IsPermanentContext bool       `json:"is_permanent_context" yaml:"is_permanent_context"`
}

// Hit returns the row as a short-term search hit.
func (m ShortTermMemory) Hit() SearchHit {
	return SearchHit{
		Tier:              TierShortTerm,
		MemoryID:          m.MemoryID,
		Namespace:         m.Namespace,
		Category:          m.Category,
		Summary:           m.Summary,
		SearchableContent: m.SearchableContent,
		ImportanceScore:   m.ImportanceScore,
		CreatedAt:         m.CreatedAt,
		AccessCount:       m.AccessCount,
	}
}

// Rule is an extracted rule statement.
type Rule struct {
	RuleID    string    `json:"rule_id" yaml:"rule_id"`
	Namespace string    `json:"namespace" yaml:"namespace"`
	RuleText  string    `json:"rule_text" yaml:"rule_text"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// SearchHit is a memory matched by search in either tier.
type SearchHit struct {
	Tier              Tier      `json:"memory_type"`
	MemoryID          string    `json:"memory_id"`
	Namespace         string    `json:"namespace"`
	Category          Category  `json:"category_primary"`
	Summary           string    `json:"summary"`
	SearchableContent string    `json:"searchable_content"`
	ImportanceScore   float64   `json:"importance_score"`
	CreatedAt         time.Time `json:"created_at"`
	AccessCount       int       `json:"access_count"`
}

// Export is a structured dump of every table for one namespace.
type Export struct {
	Namespace       string            `json:"namespace" yaml:"namespace"`
	ChatHistory     []ChatExchange    `json:"chat_history" yaml:"chat_history"`
	ShortTermMemory []ShortTermMemory `json:"short_term_memory" yaml:"short_term_memory"`
	LongTermMemory  []LongTermMemory  `json:"long_term_memory" yaml:"long_term_memory"`
	RulesMemory     []Rule            `json:"rules_memory" yaml:"rules_memory"`
}
