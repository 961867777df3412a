// Package score holds the relevance heuristic gating drafts before
// persistence or AI validation.
package score

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Threshold is the relevance score below which a draft is rejected.
const Threshold = 0.3

// LowRelevanceReason is the rejection reason recorded for drafts scoring
// under Threshold.
const LowRelevanceReason = "low relevance"

var wordExpr = regexp.MustCompile(`\w+`)

// Relevance returns the fraction of distinct title words that also appear in
// the content, in [0,1]. A title with no words scores 0.
func Relevance(title, content string) float64 {
	titleWords := tokenSet(title)
	if len(titleWords) == 0 {
		return 0
	}
	contentWords := tokenSet(content)

	matched := 0
	for w := range titleWords {
		if _, ok := contentWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(titleWords))
}

// DetectEnglish reports whether text is detected as English and whether the
// detection is reliable. Short or ambiguous text comes back unreliable;
// callers decide how conservative to be.
func DetectEnglish(text string) (english, reliable bool) {
	if strings.TrimSpace(text) == "" {
		return false, false
	}
	info := whatlanggo.Detect(text)
	return info.Lang == whatlanggo.Eng, info.IsReliable()
}

func tokenSet(text string) map[string]struct{} {
	words := wordExpr.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
