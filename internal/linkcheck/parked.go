package linkcheck

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// maxTitleScanBytes bounds how much of a page gets parsed for its title.
const maxTitleScanBytes = 64 << 10 // 64KB

var parkedMarkers = []string{
	"domain for sale",
	"this domain is for sale",
	"buy this domain",
	"domain is parked",
	"parked domain",
	"parked free",
	"courtesy of godaddy",
	"sedo domain parking",
	"hugedomains",
	"dan.com",
}

// pageTitle extracts the <title> text from an HTML document.
func pageTitle(r io.Reader) (string, bool) {
	doc, err := html.Parse(io.LimitReader(r, maxTitleScanBytes))
	if err != nil {
		return "", false
	}

	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = n.FirstChild.Data
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(doc) {
		return "", false
	}
	return strings.TrimSpace(title), true
}

// isParkedTitle reports whether a page title reads like a domain parking
// or for-sale lander rather than a product site.
func isParkedTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, marker := range parkedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
