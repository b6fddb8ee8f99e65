package session

import (
	"strings"
	"unicode"
)

var affirmatives = map[string]bool{
	"y":          true,
	"yes":        true,
	"yeah":       true,
	"yep":        true,
	"ok":         true,
	"okay":       true,
	"sure":       true,
	"go":         true,
	"go ahead":   true,
	"proceed":    true,
	"approve":    true,
	"approved":   true,
	"lgtm":       true,
	"looks good": true,
	"👍":          true,
	"✅":          true,
}

// IsAffirmative reports whether text, as a whole, accepts a plan.
// Matching ignores case, surrounding space and trailing punctuation, so
// "Yes!" accepts while "yes, but make it blue" does not.
func IsAffirmative(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	s = strings.Join(strings.Fields(s), " ")
	return affirmatives[s]
}
