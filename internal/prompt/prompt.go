// Package prompt renders ranked memories into a bounded text block for
// injection into an agent's context.
package prompt

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/apogeemind/internal/model"
)

const (
	DefaultMaxChars = 2000
	DefaultLineMax  = 240

	Footer   = "--- End Memories ---"
	ellipsis = "…"
)

// Builder formats memory blocks. The zero value uses the defaults.
type Builder struct {
	MaxChars int
	LineMax  int
}

// NewBuilder returns a Builder with the default limits.
func NewBuilder() Builder {
	return Builder{MaxChars: DefaultMaxChars, LineMax: DefaultLineMax}
}

// Build renders hits under a header for ns. Lines are added in order until
// the next one would push the block, footer included, past MaxChars. The
// footer is always present.
func (b Builder) Build(hits []model.SearchHit, label, ns string) string {
	maxChars := b.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	lineMax := b.LineMax
	if lineMax <= 0 {
		lineMax = DefaultLineMax
	}

	lines := []string{fmt.Sprintf("--- %s (namespace=%s) ---", label, ns)}
	size := utf8.RuneCountInString(lines[0]) + 1 + utf8.RuneCountInString(Footer)

	for _, h := range hits {
		line := truncate(formatLine(h), lineMax)
		n := utf8.RuneCountInString(line) + 1
		if size+n > maxChars {
			break
		}
		lines = append(lines, line)
		size += n
	}

	lines = append(lines, Footer)
	return strings.Join(lines, "\n")
}

func formatLine(h model.SearchHit) string {
	category := strings.ToUpper(string(h.Category))
	if category == "" {
		category = "CONTEXT"
	}
	importance := h.ImportanceScore
	if math.IsNaN(importance) || importance < 0 {
		importance = 0
	}
	created := "unknown"
	if !h.CreatedAt.IsZero() {
		created = h.CreatedAt.UTC().Format(model.TimeLayout)
	}
	summary := strings.Join(strings.Fields(h.Summary), " ")
	return fmt.Sprintf("- [%s] %s (%s, importance=%.2f)", category, summary, created, importance)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + ellipsis
}
