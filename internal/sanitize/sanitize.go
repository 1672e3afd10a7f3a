// Package sanitize cleans user-supplied display text before it is stored.
// Names are echoed back verbatim by every view endpoint, so any markup is
// stripped with bluemonday's strict policy instead of being escaped later.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText removes all HTML from input and trims surrounding whitespace.
// Entities produced by the policy are decoded again so that "Tom & Jerry"
// survives unchanged, unless decoding would reintroduce angle brackets.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	cleaned := getPolicy().Sanitize(input)
	decoded := html.UnescapeString(cleaned)
	if strings.ContainsAny(decoded, "<>") {
		return strings.TrimSpace(cleaned)
	}
	return strings.TrimSpace(decoded)
}
