// Package crawl walks a help-center site and consolidates its pages
// into the corpus file the knowledge store searches.
//
// The crawl favors FAQ answer pages: links whose text or href carry a
// question mark jump the queue, and answer pages are kept at a lower
// word threshold than index pages.
package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

type Config struct {
	StartURL string

	MaxPages       int
	Delay          time.Duration
	MinWords       int
	AnswerMinWords int
	UserAgent      string
	MaxPageBytes   int64

	// HTTPClient overrides the restricted default. Tests inject one
	// that can reach loopback.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Page struct {
	URL     string
	Title   string
	Content string
	Words   int
	Answer  bool
}

type Crawler struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	start  *url.URL
}

func New(cfg Config) (*Crawler, error) {
	start, err := url.Parse(strings.TrimSpace(cfg.StartURL))
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("start url must be http or https")
	}
	if start.Host == "" {
		return nil, fmt.Errorf("start url must include a host")
	}

	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 20
	}
	if cfg.AnswerMinWords <= 0 {
		cfg.AnswerMinWords = 15
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 5 << 20
	}

	client := cfg.HTTPClient
	if client == nil {
		client = NewRestrictedHTTPClient(10 * time.Second)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Crawler{cfg: cfg, client: client, logger: logger, start: start}, nil
}

// Run crawls from the start URL until the queues empty or MaxPages
// pages have been fetched, and returns the pages worth keeping. On
// context cancellation it returns what it has collected so far along
// with the context error, so a partial corpus can still be written.
func (c *Crawler) Run(ctx context.Context) ([]Page, error) {
	startURL := c.start.String()
	priority := []string{startURL}
	var regular []string
	seen := map[string]struct{}{startURL: {}}

	var kept []Page
	fetched := 0
	defer func() { c.summarize(len(seen), kept) }()

	for fetched < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return kept, err
		}

		var rawURL string
		switch {
		case len(priority) > 0:
			rawURL, priority = priority[0], priority[1:]
		case len(regular) > 0:
			rawURL, regular = regular[0], regular[1:]
		default:
			return kept, nil
		}

		page, links, err := c.fetchPage(ctx, rawURL)
		if err != nil {
			c.logger.Warn("fetch failed", "url", rawURL, "error", err)
		} else {
			fetched++

			minWords := c.cfg.MinWords
			if page.Answer {
				minWords = c.cfg.AnswerMinWords
			}
			if page.Words > minWords {
				kept = append(kept, page)
				c.logger.Info("page kept", "url", page.URL, "title", page.Title, "words", page.Words, "answer", page.Answer)
			} else {
				c.logger.Debug("page skipped, too short", "url", page.URL, "words", page.Words)
			}

			for _, link := range links {
				if _, dup := seen[link.url]; dup {
					continue
				}
				seen[link.url] = struct{}{}
				if link.priority {
					priority = append(priority, link.url)
				} else {
					regular = append(regular, link.url)
				}
			}
		}

		if c.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return kept, ctx.Err()
			case <-time.After(c.cfg.Delay):
			}
		}
	}

	return kept, nil
}

func (c *Crawler) fetchPage(ctx context.Context, rawURL string) (Page, []pageLink, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, nil, fmt.Errorf("status %s", resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, c.cfg.MaxPageBytes))
	if err != nil {
		return Page{}, nil, fmt.Errorf("parse html: %w", err)
	}

	ex := extractPage(doc, base)
	return Page{
		URL:     rawURL,
		Title:   ex.title,
		Content: ex.content,
		Words:   ex.words,
		Answer:  isAnswerPage(rawURL, ex.title),
	}, ex.links, nil
}

func (c *Crawler) summarize(discovered int, kept []Page) {
	answers := 0
	for _, p := range kept {
		if p.Answer {
			answers++
		}
	}
	c.logger.Info("crawl complete",
		"urls_discovered", discovered,
		"pages_kept", len(kept),
		"answer_pages", answers,
		"regular_pages", len(kept)-answers)
}

var sectionRule = strings.Repeat("=", 100)

// WriteConsolidated renders pages in the corpus layout the knowledge
// store parses: a rule of equals signs, SOURCE and TITLE lines, a
// second rule, then the page text, with blank lines isolating the
// header from the content.
func WriteConsolidated(w io.Writer, pages []Page) error {
	for _, p := range pages {
		if _, err := fmt.Fprintf(w, "\n\n%s\nSOURCE: %s\nTITLE: %s\n%s\n\n%s", sectionRule, p.URL, p.Title, sectionRule, p.Content); err != nil {
			return err
		}
	}
	return nil
}

func SaveConsolidated(path string, pages []Page) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteConsolidated(f, pages); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
