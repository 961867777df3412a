// Package textutil cleans extracted article text: markup stripping,
// whitespace normalization, boilerplate removal, and sentence-bounded
// truncation.
package textutil

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ReadMoreMarker is appended when a body is truncated to MaxSentences.
const ReadMoreMarker = "... [Read more at the source.]"

// MaxSentences bounds persisted body length.
const MaxSentences = 15

// decorative quote and bullet glyphs stripped from cleaned text.
var glyphs = strings.NewReplacer(
	"'", "", `"`, "", "“", "", "”", "", "‘", "", "’", "", "•", "",
)

// builtinBoilerplate matches metadata and call-to-action lines that carry no
// article content. Patterns are data: config can extend this list.
var builtinBoilerplate = []string{
	`Published By:.*`,
	`Last Updated:.*`,
	`Trending Desk.*`,
	`Updated By:.*`,
	`Written By:.*`,
	`Updated on:.*`,
	`Curated By:.*`,
	`Created By:.*`,
	`Subscribe.*`,
	`Sign Up.*`,
	`Register.*`,
	`Get Started.*`,
	`Start Your Free Trial.*`,
	`Free Access.*`,
	`Advertisement.*`,
	`Become a Member.*`,
	`Unlimited Access.*`,
	`Accept all cookies.*`,
	`We use cookies.*`,
	`\b\d{1,2} \w{3,9} \d{4}\b`,
	`\b\d{1,2} min read\b`,
	`UPDATE \(.*\)`,
	`To revisit this article, visit My Profile, then\s*View saved stories`,
	`By\s*\.{3,}`,
}

var builtinRes = compilePatterns(builtinBoilerplate)

func compilePatterns(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue
		}
		res = append(res, re)
	}
	return res
}

// Clean strips markup from text with an HTML-aware extractor, collapses
// whitespace runs to single spaces, and removes decorative glyphs. Naive
// regex tag stripping is avoided so entities survive intact.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err == nil {
			text = doc.Text()
		}
	}

	text = glyphs.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// StripBoilerplate removes boilerplate fragments matching the built-in
// pattern set plus any extra patterns, then re-collapses whitespace.
func StripBoilerplate(text string, extra []string) string {
	res := builtinRes
	if len(extra) > 0 {
		res = append(append([]*regexp.Regexp{}, builtinRes...), compilePatterns(extra)...)
	}
	for _, re := range res {
		text = re.ReplaceAllString(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// SplitSentences splits text on sentence-ending punctuation followed by
// whitespace. The terminator stays with its sentence.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			// Consume trailing terminators (e.g. "?!", "...").
			j := i
			for j+1 < len(runes) && (runes[j+1] == '.' || runes[j+1] == '!' || runes[j+1] == '?') {
				j++
			}
			if j+1 >= len(runes) || runes[j+1] == ' ' || runes[j+1] == '\n' || runes[j+1] == '\t' {
				s := strings.TrimSpace(string(runes[start : j+1]))
				if s != "" {
					sentences = append(sentences, s)
				}
				start = j + 1
			}
			i = j
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// Truncate bounds text to at most max sentences, appending ReadMoreMarker
// when anything was cut.
func Truncate(text string, max int) string {
	sentences := SplitSentences(text)
	if len(sentences) <= max {
		return text
	}
	return strings.Join(sentences[:max], " ") + ReadMoreMarker
}

// WordCount returns the number of whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
