package crawl

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Chrome and nav furniture carry no help content; both text and link
// extraction skip these subtrees.
var skippedElements = map[atom.Atom]struct{}{
	atom.Script: {},
	atom.Style:  {},
	atom.Nav:    {},
	atom.Footer: {},
	atom.Header: {},
}

type extracted struct {
	title   string
	content string
	words   int
	links   []pageLink
}

type pageLink struct {
	url      string
	priority bool
}

// extractPage pulls the title, the cleaned text, and the same-host
// links out of a parsed help page. Links whose text or href carry a
// question mark are flagged priority: on a help center those are the
// FAQ answers.
func extractPage(doc *html.Node, base *url.URL) extracted {
	title := strings.TrimSpace(nodeText(findElement(doc, atom.Title)))
	if title == "" {
		title = "Untitled"
	}

	scope := contentScope(doc)
	var lines []string
	collectText(scope, &lines)
	content := strings.Join(lines, "\n")

	return extracted{
		title:   title,
		content: content,
		words:   len(strings.Fields(content)),
		links:   collectLinks(doc, base),
	}
}

// isAnswerPage reports whether a page looks like an FAQ answer rather
// than an index: a question mark in the URL or the title.
func isAnswerPage(rawURL, title string) bool {
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, "?") || strings.Contains(lower, "%3f") {
		return true
	}
	return strings.Contains(title, "?")
}

// contentScope picks the node text extraction starts from: main, then
// article, then a div with class "content", then body, then the whole
// document.
func contentScope(doc *html.Node) *html.Node {
	if n := findElement(doc, atom.Main); n != nil {
		return n
	}
	if n := findElement(doc, atom.Article); n != nil {
		return n
	}
	if n := findDivWithClass(doc, "content"); n != nil {
		return n
	}
	if n := findElement(doc, atom.Body); n != nil {
		return n
	}
	return doc
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findDivWithClass(n *html.Node, class string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Div {
		for _, f := range strings.Fields(attrValue(n, "class")) {
			if f == class {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findDivWithClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

// collectText appends every non-empty trimmed text node under n,
// skipping chrome subtrees.
func collectText(n *html.Node, lines *[]string) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode {
		if _, skip := skippedElements[n.DataAtom]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			*lines = append(*lines, text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

func collectLinks(n *html.Node, base *url.URL) []pageLink {
	var links []pageLink
	seen := make(map[string]struct{})
	walkLinks(n, base, seen, &links)
	return links
}

func walkLinks(n *html.Node, base *url.URL, seen map[string]struct{}, links *[]pageLink) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode {
		if _, skip := skippedElements[n.DataAtom]; skip {
			return
		}
		if n.DataAtom == atom.A {
			if link, ok := resolveLink(n, base); ok {
				if _, dup := seen[link.url]; !dup {
					seen[link.url] = struct{}{}
					*links = append(*links, link)
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkLinks(c, base, seen, links)
	}
}

func resolveLink(n *html.Node, base *url.URL) (pageLink, bool) {
	href := strings.TrimSpace(attrValue(n, "href"))
	if href == "" {
		return pageLink{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageLink{}, false
	}
	full := base.ResolveReference(ref)
	if full.Host != base.Host {
		return pageLink{}, false
	}
	// Drop the fragment, keep query params: they often carry the
	// question id on FAQ platforms.
	full.Fragment = ""

	text := nodeText(n)
	priority := strings.Contains(text, "?") ||
		strings.Contains(href, "?") ||
		strings.Contains(strings.ToLower(href), "%3f")

	return pageLink{url: full.String(), priority: priority}, true
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
