package crawl

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parseDoc(t *testing.T, raw string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

func TestExtractPageScopesToMainAndSkipsChrome(t *testing.T) {
	doc := parseDoc(t, `<html><head><title> Freeze your card </title></head><body>
<nav><a href="/home">Home</a>Site navigation</nav>
<main><h1>Freezing</h1><p>Open the app and tap freeze.</p><script>var x = 1;</script></main>
<footer>Footer text</footer>
</body></html>`)

	got := extractPage(doc, mustURL(t, "https://help.example.com/"))

	if got.title != "Freeze your card" {
		t.Fatalf("title=%q", got.title)
	}
	if strings.Contains(got.content, "navigation") || strings.Contains(got.content, "Footer") {
		t.Fatalf("chrome text leaked into content: %q", got.content)
	}
	if strings.Contains(got.content, "var x") {
		t.Fatalf("script text leaked into content: %q", got.content)
	}
	if got.content != "Freezing\nOpen the app and tap freeze." {
		t.Fatalf("content=%q", got.content)
	}
	if got.words != 7 {
		t.Fatalf("words=%d", got.words)
	}
}

func TestExtractPageFallsBackToBody(t *testing.T) {
	doc := parseDoc(t, `<html><body><p>Just a body paragraph.</p></body></html>`)

	got := extractPage(doc, mustURL(t, "https://help.example.com/"))

	if got.title != "Untitled" {
		t.Fatalf("title=%q", got.title)
	}
	if got.content != "Just a body paragraph." {
		t.Fatalf("content=%q", got.content)
	}
}

func TestExtractPagePrefersContentDiv(t *testing.T) {
	doc := parseDoc(t, `<html><body>
<div class="sidebar">Sidebar junk</div>
<div class="content extra"><p>The real article text.</p></div>
</body></html>`)

	got := extractPage(doc, mustURL(t, "https://help.example.com/"))

	if got.content != "The real article text." {
		t.Fatalf("content=%q", got.content)
	}
}

func TestCollectLinksClassifiesAndFilters(t *testing.T) {
	doc := parseDoc(t, `<html><body><main>
<a href="/faq/1234">How do I reset my PIN?</a>
<a href="/article%3Fid=9">Article</a>
<a href="/guides/cards">Card guides</a>
<a href="/guides/cards#section">Card guides again</a>
<a href="https://other.example.net/out">External</a>
</main>
<nav><a href="/nav-only">Nav link</a></nav>
</body></html>`)

	got := extractPage(doc, mustURL(t, "https://help.example.com/start"))

	want := []pageLink{
		{url: "https://help.example.com/faq/1234", priority: true},
		{url: "https://help.example.com/article%3Fid=9", priority: true},
		{url: "https://help.example.com/guides/cards", priority: false},
	}
	if len(got.links) != len(want) {
		t.Fatalf("links=%+v, want %d entries", got.links, len(want))
	}
	for i, w := range want {
		if got.links[i] != w {
			t.Fatalf("links[%d]=%+v, want %+v", i, got.links[i], w)
		}
	}
}

func TestIsAnswerPage(t *testing.T) {
	cases := []struct {
		url   string
		title string
		want  bool
	}{
		{"https://h.example.com/faq?id=1", "Some page", true},
		{"https://h.example.com/faq%3Fid=1", "Some page", true},
		{"https://h.example.com/faq/1", "How do I open an account?", true},
		{"https://h.example.com/guides", "Guides", false},
	}
	for _, tc := range cases {
		if got := isAnswerPage(tc.url, tc.title); got != tc.want {
			t.Fatalf("isAnswerPage(%q, %q)=%v, want %v", tc.url, tc.title, got, tc.want)
		}
	}
}
