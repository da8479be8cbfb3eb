// Package heuristics turns raw conversation text into structured memory
// candidates using deterministic pattern matching. Nothing here does I/O.
package heuristics

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/apogeemind/internal/model"
)

const (
	// MaxSummaryLen is the summary bound in runes.
	MaxSummaryLen = 280

	baseScore = 0.4
	ellipsis  = "…"
)

// TechKeywords is the closed vocabulary used for skill detection and keyword
// extraction.
var TechKeywords = map[string]bool{
	// languages / runtimes
	"python": true, "go": true, "golang": true, "rust": true, "node": true,
	"typescript": true, "javascript": true, "java": true, "kotlin": true, "swift": true,
	// frameworks / libraries
	"fastapi": true, "flask": true, "django": true, "react": true, "vue": true,
	"svelte": true, "pytest": true, "junit": true,
	// datastores / infra
	"postgres": true, "postgresql": true, "mysql": true, "sqlite": true, "duckdb": true,
	"redis": true, "docker": true, "kubernetes": true,
}

var (
	codeFenceRe  = regexp.MustCompile("```[\\s\\S]*?```")
	whitespaceRe = regexp.MustCompile(`\s+`)
	filePathRe   = regexp.MustCompile(`(?:\b|\./|/)[\w./-]+\.(?:py|go|ts|tsx|js|rs|md|json|yaml|yml|toml)\b`)
	issueRefRe   = regexp.MustCompile(`#\d+\b|\b[A-Z]{2,10}-\d{1,6}\b`)
	preferenceRe = regexp.MustCompile(`(?i)\b(?:i\s+prefer|i\s+like|default\s+to|please\s+always)\b`)
	ruleRe       = regexp.MustCompile(`(?i)\b(?:always|never|do\s+not|must|should)\b`)
)

var categoryBoost = map[model.Category]float64{
	model.CategoryPreference: 0.25,
	model.CategoryRule:       0.25,
	model.CategorySkill:      0.15,
	model.CategoryContext:    0.10,
}

// Candidate is a structured memory derived from one exchange.
type Candidate struct {
	Category           model.Category
	Summary            string
	SearchableContent  string
	ImportanceScore    float64
	Classification     string
	Entities           []string
	Keywords           []string
	PromotionEligible  bool
	ContentFingerprint string
}

// Processor classifies and scores exchanges.
type Processor struct {
	threshold float64
}

// NewProcessor returns a Processor that marks candidates scoring at least
// promotionThreshold as promotion eligible.
func NewProcessor(promotionThreshold float64) *Processor {
	return &Processor{threshold: promotionThreshold}
}

// Threshold returns the promotion threshold.
func (p *Processor) Threshold() float64 { return p.threshold }

// Process derives a candidate from one user/assistant exchange. Identical
// inputs always produce identical candidates.
func (p *Processor) Process(userText, assistantText string) Candidate {
	text := Normalize(userText + "\n\n" + assistantText)

	source := assistantText
	if Normalize(source) == "" {
		source = userText
	}
	summary := Summarize(source, MaxSummaryLen)

	raw := userText + "\n" + assistantText
	category := Classify(raw)
	entities := ExtractEntities(raw)
	keywords := ExtractKeywords(text)
	score := Score(text, category, len(entities), len(keywords))

	c := Candidate{
		Category:           category,
		Summary:            summary,
		SearchableContent:  text,
		ImportanceScore:    score,
		Entities:           entities,
		Keywords:           keywords,
		ContentFingerprint: Fingerprint(text),
	}
	if category.IsPermanent() {
		c.Classification = model.ClassificationConsciousInfo
	}
	c.PromotionEligible = score >= p.threshold && promotable(category)
	return c
}

// promotable is true for every category the classifier can emit, so in
// practice eligibility depends on the score alone.
func promotable(c model.Category) bool {
	for _, pc := range model.PromotableCategories {
		if pc == c {
			return true
		}
	}
	return false
}

// Normalize strips fenced code blocks and collapses whitespace.
func Normalize(s string) string {
	s = codeFenceRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Summarize normalizes s and bounds it to maxLen runes, preferring to cut at
// the last sentence boundary inside the limit.
func Summarize(s string, maxLen int) string {
	s = Normalize(s)
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	window := string(runes[:maxLen])
	cut := -1
	for _, term := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(window, term); i > cut {
			cut = i
		}
	}
	if cut > 0 {
		return window[:cut+1]
	}
	return string(runes[:maxLen-1]) + ellipsis
}

// Classify picks a category for the raw combined exchange text.
func Classify(raw string) model.Category {
	if preferenceRe.MatchString(raw) {
		return model.CategoryPreference
	}
	if ruleRe.MatchString(raw) {
		return model.CategoryRule
	}
	for _, tok := range tokens(Normalize(raw)) {
		if TechKeywords[tok] {
			return model.CategorySkill
		}
	}
	// file paths and issue references also land in context, same as the
	// fallback; the check is kept so the ordering stays explicit
	if filePathRe.MatchString(raw) || issueRefRe.MatchString(raw) {
		return model.CategoryContext
	}
	return model.CategoryContext
}

// ExtractEntities returns file paths then issue references found in raw,
// deduplicated in first-seen order.
func ExtractEntities(raw string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(matches []string) {
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	add(filePathRe.FindAllString(raw, -1))
	add(issueRefRe.FindAllString(raw, -1))
	return out
}

// ExtractKeywords returns the sorted vocabulary tokens present in normalized text.
func ExtractKeywords(normalized string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range tokens(normalized) {
		if TechKeywords[tok] && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	sort.Strings(out)
	return out
}

// Score computes the importance of normalized text in [0,1].
func Score(normalized string, category model.Category, entityCount, keywordCount int) float64 {
	var penalty float64
	switch n := utf8.RuneCountInString(normalized); {
	case n < 800:
		penalty = 0
	case n < 2000:
		penalty = 0.15
	default:
		penalty = 0.30
	}

	bonus := 0.02 * float64(entityCount+keywordCount)
	if bonus > 0.2 {
		bonus = 0.2
	}

	score := baseScore + categoryBoost[category] + bonus - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Fingerprint is the hex SHA-256 of normalized text.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func tokens(normalized string) []string {
	return strings.Fields(strings.ToLower(normalized))
}
