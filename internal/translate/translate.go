// Package translate maps an English question to an SPL query with an ordered rule table.
package translate

import (
	"strings"

	"github.com/mazrean/splunkmcp/internal/metadata"
)

// DefaultQuery is returned when no rule matches
const DefaultQuery = "search index=_internal | head 10"

// Rule is one entry of the rule table.
// Match receives the lower-cased question; Build receives the current snapshot, never nil.
type Rule struct {
	Name  string
	Match func(question string) bool
	Build func(snapshot *metadata.Snapshot) string
}

// Translator evaluates rules in order; the first match wins
type Translator struct {
	rules    []Rule
	fallback string
}

// New returns a translator with the default rules followed by extra
func New(extra ...Rule) *Translator {
	rules := make([]Rule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)

	return &Translator{
		rules:    rules,
		fallback: DefaultQuery,
	}
}

// Translate returns the query for question. It never fails.
func (t *Translator) Translate(question string, snapshot *metadata.Snapshot) string {
	if snapshot == nil {
		snapshot = metadata.Empty()
	}

	q := strings.ToLower(question)
	for _, rule := range t.rules {
		if rule.Match(q) {
			return rule.Build(snapshot)
		}
	}

	return t.fallback
}

// ContainsAny returns a matcher for questions containing any of substrs.
// substrs must be lower case.
func ContainsAny(substrs ...string) func(string) bool {
	return func(q string) bool {
		for _, s := range substrs {
			if strings.Contains(q, s) {
				return true
			}
		}
		return false
	}
}
