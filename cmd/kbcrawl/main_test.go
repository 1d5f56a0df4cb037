package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_ReportsFlagParseError(t *testing.T) {
	var stderr bytes.Buffer
	if got := run([]string{"-max-pages", "many"}, &stderr); got != 2 {
		t.Fatalf("run() = %d, want 2", got)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected flag error output on stderr")
	}
}

func TestRun_RejectsInvalidStartURL(t *testing.T) {
	var stderr bytes.Buffer
	if got := run([]string{"-url", "not a url"}, &stderr); got != 1 {
		t.Fatalf("run() = %d, want 1", got)
	}
	if !strings.Contains(stderr.String(), "kbcrawl:") {
		t.Fatalf("stderr = %q, want kbcrawl error prefix", stderr.String())
	}
}

func TestRun_FailsWhenNothingCollected(t *testing.T) {
	// The restricted client refuses loopback destinations at dial time, so
	// every fetch fails and the crawl ends with an empty corpus.
	var stderr bytes.Buffer
	args := []string{"-url", "http://127.0.0.1:1/", "-delay", "0s", "-max-pages", "1"}
	if got := run(args, &stderr); got != 1 {
		t.Fatalf("run() = %d, want 1", got)
	}
	if !strings.Contains(stderr.String(), "no pages collected") {
		t.Fatalf("stderr = %q, want no-pages message", stderr.String())
	}
}
