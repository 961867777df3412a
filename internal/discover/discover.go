// Package discover extracts candidate article URLs from a fetched seed page.
// Discovery is one hop: links found on the seed are candidates, nothing is
// crawled further.
package discover

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Links returns the normalized absolute URLs of candidate articles found in
// body, which may be an HTML listing page or an RSS/Atom feed. Results are
// de-duplicated and sorted; order carries no meaning.
func Links(body []byte, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	if looksLikeFeed(body) {
		if links := feedLinks(body); len(links) > 0 {
			return normalize(links, base), nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		// Absolute http(s) links and root-relative paths only.
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") && !strings.HasPrefix(href, "/") {
			return
		}
		hrefs = append(hrefs, href)
	})

	return normalize(hrefs, base), nil
}

func normalize(hrefs []string, base *url.URL) []string {
	seen := make(map[string]struct{}, len(hrefs))
	var links []string
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		key := abs.String()
		if key == base.String() {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, key)
	}
	sort.Strings(links)
	return links
}

// looksLikeFeed sniffs for an XML feed document without committing to a full
// parse.
func looksLikeFeed(body []byte) bool {
	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(head, []byte("<rss")) ||
		bytes.Contains(head, []byte("<feed")) ||
		bytes.Contains(head, []byte("<rdf:RDF"))
}

func feedLinks(body []byte) []string {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil
	}
	var links []string
	for _, item := range feed.Items {
		link := item.Link
		if link == "" {
			link = item.GUID
		}
		if link != "" {
			links = append(links, link)
		}
	}
	return links
}
