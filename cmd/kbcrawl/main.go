package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cxbuddy/voicerelay/internal/crawl"
)

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("kbcrawl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	startURL := fs.String("url", "https://help.gxs.com.sg/", "help center start URL")
	out := fs.String("out", "./gxs_knowledge_base.txt", "consolidated corpus output path")
	maxPages := fs.Int("max-pages", 200, "stop after this many fetched pages")
	delay := fs.Duration("delay", 2*time.Second, "politeness delay between fetches")
	minWords := fs.Int("min-words", 20, "minimum words to keep a page")
	answerMinWords := fs.Int("answer-min-words", 15, "minimum words to keep an FAQ answer page")
	timeout := fs.Duration("timeout", 10*time.Second, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	c, err := crawl.New(crawl.Config{
		StartURL:       *startURL,
		MaxPages:       *maxPages,
		Delay:          *delay,
		MinWords:       *minWords,
		AnswerMinWords: *answerMinWords,
		HTTPClient:     crawl.NewRestrictedHTTPClient(*timeout),
		Logger:         logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "kbcrawl: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pages, err := c.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("crawl interrupted, writing what was collected", "pages", len(pages))
	} else if err != nil {
		fmt.Fprintf(stderr, "kbcrawl: %v\n", err)
		return 1
	}

	if len(pages) == 0 {
		fmt.Fprintln(stderr, "kbcrawl: no pages collected, corpus not written")
		return 1
	}

	if err := crawl.SaveConsolidated(*out, pages); err != nil {
		fmt.Fprintf(stderr, "kbcrawl: write corpus: %v\n", err)
		return 1
	}
	logger.Info("corpus written", "path", *out, "pages", len(pages))
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
