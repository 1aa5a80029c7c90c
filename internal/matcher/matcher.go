// Package matcher decides whether a free-text milestone report covers a
// contract condition.
package matcher

import "strings"

// Threshold is the fraction of condition keywords that must appear in the
// milestone text.
const Threshold = 0.6

// IsSatisfied lower-cases both inputs, splits the condition on whitespace and
// reports whether at least Threshold of those keywords occur as substrings of
// the milestone text. Matching is substring based, so "a" matches inside
// "cat". A condition with no keywords is never satisfied.
func IsSatisfied(condition, milestone string) bool {
	keywords := strings.Fields(strings.ToLower(condition))
	if len(keywords) == 0 {
		return false
	}
	text := strings.ToLower(milestone)

	matched := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matched++
		}
	}
	return float64(matched) >= float64(len(keywords))*Threshold
}
