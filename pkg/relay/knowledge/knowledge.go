// Package knowledge serves help-center search over the crawled GXS
// knowledge file. Sections are scored by keyword hits, favoring dense
// short sections, and the top three unique snippets are returned as
// one voice-readable string.
package knowledge

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

const (
	msgUnavailable = "Knowledge base not available. Please run kbcrawl first."
	msgNoResults   = "No information found for this query. Please check help.gxs.com.sg directly."
)

var wordPattern = regexp.MustCompile(`\b[a-z]+\b`)

var stopWords = map[string]struct{}{
	"are": {}, "the": {}, "is": {}, "a": {}, "an": {}, "and": {}, "or": {},
	"but": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "from": {}, "my": {}, "your": {}, "i": {}, "you": {}, "it": {},
	"this": {}, "that": {}, "be": {}, "can": {}, "do": {}, "does": {},
	"what": {}, "how": {}, "when": {}, "where": {}, "why": {}, "which": {},
}

type section struct {
	lower   string
	length  int
	snippet string
}

type Store struct {
	available bool
	sections  []section
}

// NewFromFile loads the knowledge file once at startup. A missing file
// yields an unavailable store whose searches explain the gap instead of
// failing the call.
func NewFromFile(path string) *Store {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &Store{}
	}
	return NewFromContent(string(raw))
}

func NewFromContent(content string) *Store {
	s := &Store{available: true}
	for _, block := range strings.Split(content, "\n\n") {
		trimmed := strings.TrimSpace(block)
		if len(trimmed) < 100 {
			continue
		}
		s.sections = append(s.sections, section{
			lower:   strings.ToLower(block),
			length:  len(trimmed),
			snippet: buildSnippet(trimmed),
		})
	}
	return s
}

func (s *Store) Available() bool {
	return s.available
}

// Search returns up to three matching snippets separated by a voice
// pause marker, or a fixed fallback message.
func (s *Store) Search(query string) string {
	if !s.available {
		return msgUnavailable
	}

	keywords := extractKeywords(query)

	type match struct {
		score   float64
		snippet string
	}
	var matches []match

	for _, sec := range s.sections {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(sec.lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		score := float64(hits * 100)
		if hits == len(keywords) {
			score += 200
		}
		// Normalize by section length so short dense sections win.
		score = score / (float64(sec.length) / 100)

		if sec.snippet != "" {
			matches = append(matches, match{score: score, snippet: sec.snippet})
		}
	}

	if len(matches) == 0 {
		return msgNoResults
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > 10 {
		matches = matches[:10]
	}

	var unique []string
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, dup := seen[m.snippet]; dup {
			continue
		}
		seen[m.snippet] = struct{}{}
		unique = append(unique, m.snippet)
		if len(unique) >= 3 {
			break
		}
	}

	return strings.Join(unique, "\n\n---\n\n")
}

func extractKeywords(query string) []string {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// buildSnippet keeps the first ten content lines of a section, dropping
// crawler markers, capped at 600 characters.
func buildSnippet(trimmed string) string {
	var content []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "=") || strings.HasPrefix(line, "SOURCE:") || strings.HasPrefix(line, "TITLE:") {
			continue
		}
		content = append(content, line)
		if len(content) == 10 {
			break
		}
	}
	if len(content) == 0 {
		return ""
	}
	return truncate(strings.Join(content, " "), 600)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
