// Package redact masks secrets in text before it is persisted.
package redact

import "regexp"

// Replacement is substituted for every redacted match.
const Replacement = "[REDACTED]"

// DefaultPatterns are applied in order.
var DefaultPatterns = []*regexp.Regexp{
	// api keys / tokens
	regexp.MustCompile(`\b(?:sk|tok|key)_[A-Za-z0-9_\-]{16,}\b`),
	regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.~+/=]{10,}`),
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	// url with basic auth
	regexp.MustCompile(`https?://[^\s:@]+:[^\s@]+@\S+`),
}

// Redactor applies an ordered list of patterns.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New returns a Redactor using DefaultPatterns followed by extra.
func New(extra ...*regexp.Regexp) *Redactor {
	patterns := make([]*regexp.Regexp, 0, len(DefaultPatterns)+len(extra))
	patterns = append(patterns, DefaultPatterns...)
	patterns = append(patterns, extra...)
	return &Redactor{patterns: patterns}
}

// Redact replaces every match of every pattern with Replacement.
func (r *Redactor) Redact(text string) string {
	for _, p := range r.patterns {
		text = p.ReplaceAllString(text, Replacement)
	}
	return text
}

var defaultRedactor = New()

// Redact applies DefaultPatterns.
func Redact(text string) string {
	return defaultRedactor.Redact(text)
}
