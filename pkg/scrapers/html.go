package scrapers

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lootscout/pkg/fetch"
)

func ParseHTML(doc *fetch.Document) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
}

// Listings returns the nodes matched by the first selector that matches
// anything, cut to limit.
func Listings(root *goquery.Selection, limit int, selectors ...string) *goquery.Selection {
	var nodes *goquery.Selection
	for _, sel := range selectors {
		nodes = root.Find(sel)
		if nodes.Length() > 0 {
			break
		}
	}
	if nodes == nil {
		return root.Slice(0, 0)
	}
	if limit > 0 && nodes.Length() > limit {
		nodes = nodes.Slice(0, limit)
	}
	return nodes
}

// First returns the first element matched by any selector, tried in order.
// The result is empty when none match.
func First(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return s.Slice(0, 0)
}

// Text is the trimmed text of the first element matched by any selector.
func Text(s *goquery.Selection, selectors ...string) string {
	return strings.TrimSpace(First(s, selectors...).Text())
}

// Attr reads the first non-empty attribute of names on s.
func Attr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ImageSrc finds the first image under s that carries a usable source,
// checking lazy-load attributes too.
func ImageSrc(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		var src string
		s.Find(sel).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src = Attr(img, "src", "data-src")
			return src == ""
		})
		if src != "" {
			return src
		}
	}
	return ""
}

// StripTags returns the visible text of an HTML fragment.
func StripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return d.Text()
}
