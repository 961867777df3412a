// Package extract parses a fetched article page into a structured draft:
// title, body text, and a representative media URL.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"newsharvest/internal/article"
	"newsharvest/internal/textutil"
)

// ErrNoTitle means no usable title was found; the draft is discarded.
var ErrNoTitle = errors.New("no title found")

var (
	containerClass = regexp.MustCompile(`(content|article|story|post-content)`)
	mediaClass     = regexp.MustCompile(`(featured|hero|main)`)
)

// minimum visible text length for a harvested element.
const minElementText = 20

// Extract parses pageBody into a draft. The title comes from the first of
// <title>, <h1>, <h2> with non-empty cleaned text. The body prefers a JSON-LD
// description, then heuristic container harvesting, then a readability pass
// over the whole document. Content and MediaURL may be empty; callers decide
// whether that disqualifies the draft.
func Extract(pageBody []byte, pageURL string) (*article.Draft, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageBody))
	if err != nil {
		return nil, err
	}

	title := extractTitle(doc)
	if title == "" {
		return nil, ErrNoTitle
	}

	body := extractBody(doc)
	if body == "" {
		body = readabilityFallback(pageBody, base)
	}

	return &article.Draft{
		SourceURL: base.String(),
		Title:     title,
		Content:   body,
		MediaURL:  extractMedia(doc, base),
		Validity:  article.ValidityPending,
	}, nil
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range []string{"title", "h1", "h2"} {
		if t := textutil.Clean(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func extractBody(doc *goquery.Document) string {
	if desc := jsonLDDescription(doc); desc != "" {
		return desc
	}

	container := doc.Selection
	doc.Find("article, main, div, section").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		cls, _ := s.Attr("class")
		if containerClass.MatchString(cls) {
			container = s
			return false
		}
		return true
	})

	var parts []string
	container.Find("p, li, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if s.Find("script, style").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if len(text) <= minElementText {
			return
		}
		switch goquery.NodeName(s) {
		case "li":
			parts = append(parts, "• "+text)
		case "h2", "h3":
			parts = append(parts, "\n"+text+"\n")
		default:
			parts = append(parts, text)
		}
	})

	return strings.Join(parts, " ")
}

// jsonLDDescription returns the description field of the first parseable
// JSON-LD block, cleaned. Some sites wrap the object in a list.
func jsonLDDescription(doc *goquery.Document) string {
	var desc string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}
		if list, ok := data.([]any); ok && len(list) > 0 {
			data = list[0]
		}
		obj, ok := data.(map[string]any)
		if !ok {
			return true
		}
		if d, ok := obj["description"].(string); ok && strings.TrimSpace(d) != "" {
			desc = textutil.Clean(d)
			return false
		}
		return true
	})
	return desc
}

func extractMedia(doc *goquery.Document, base *url.URL) string {
	media, _ := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	if media == "" {
		media, _ = doc.Find(`meta[itemprop="image"]`).First().Attr("content")
	}
	if media == "" {
		doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			cls, _ := s.Attr("class")
			if !mediaClass.MatchString(cls) {
				return true
			}
			if src, ok := s.Attr("src"); ok && src != "" {
				media = src
				return false
			}
			return true
		})
	}

	media = strings.TrimSpace(media)
	if media == "" {
		return ""
	}
	ref, err := url.Parse(media)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// readabilityFallback runs a whole-document readability pass, used when
// heuristic harvesting finds nothing. Very short results are discarded.
func readabilityFallback(pageBody []byte, base *url.URL) string {
	parsed, err := readability.FromReader(bytes.NewReader(pageBody), base)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(parsed.TextContent)
	if len(text) <= 100 {
		return ""
	}
	return textutil.Clean(text)
}
