package plan

import (
	"regexp"
	"strings"
	"time"
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// GenerateName builds a plan file name from the request that produced it.
// Format: YYYYMMDD-keywords (e.g., "20260129-logo-spin")
func GenerateName(task string, now time.Time) string {
	timestamp := now.Format("20060102")

	keywords := extractKeywords(task)
	if len(keywords) == 0 {
		return timestamp + "-plan"
	}

	// Limit to 4 keywords for reasonable length
	if len(keywords) > 4 {
		keywords = keywords[:4]
	}

	return timestamp + "-" + strings.Join(keywords, "-")
}

// extractKeywords extracts meaningful keywords from a request
func extractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	keywords := make([]string, 0, len(words))
	seen := make(map[string]bool)

	for _, word := range words {
		if len(word) < 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}

	return keywords
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"to": true, "for": true, "of": true, "in": true, "on": true,
	"with": true, "is": true, "are": true, "be": true, "it": true,
	"its": true, "my": true, "your": true, "our": true, "this": true,
	"that": true, "some": true, "very": true, "just": true, "please": true,
	"me": true, "want": true, "need": true, "like": true, "make": true,
	"create": true, "generate": true, "animation": true, "video": true,
	"can": true, "you": true, "i": true, "we": true, "so": true,
}

// ValidateName checks if a plan file name is valid
func ValidateName(id string) bool {
	return namePattern.MatchString(id)
}

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)+$`)
