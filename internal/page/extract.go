// Package page extracts searchable text from fetched HTML.
package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText returns the visible text of an HTML document, whitespace
// normalized. Script and style bodies are stripped so a claim code inside
// inline JS does not count as visible.
func ExtractText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// ContainsCode reports whether needle appears in haystack as a plain
// substring. An empty or whitespace-only needle never matches.
func ContainsCode(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(haystack, needle)
}
