package knowledge

import (
	"path/filepath"
	"strings"
	"testing"
)

const testCorpus = `=== SECTION ===
SOURCE: https://help.gxs.com.sg/savings/interest
TITLE: Savings interest rates

GXS Savings Account earns daily interest on every saving pocket.
Interest is credited to your account at the start of the next day.
The base interest rate applies to your main account balance with no minimum deposit required.

=== SECTION ===
SOURCE: https://help.gxs.com.sg/cards/activation
TITLE: Debit card activation

You can activate your GXS debit card in the app under the Cards tab.
Card activation takes effect immediately and the card can be used for online purchases right away.

=== SECTION ===
SOURCE: https://help.gxs.com.sg/misc
TITLE: Short note

Too short to index.`

func TestSearch_FindsRelevantSection(t *testing.T) {
	s := NewFromContent(testCorpus)

	got := s.Search("how do I activate my debit card")
	if !strings.Contains(got, "activate your GXS debit card") {
		t.Fatalf("Search() = %q", got)
	}
	if strings.Contains(got, "SOURCE:") || strings.Contains(got, "TITLE:") || strings.Contains(got, "===") {
		t.Fatalf("snippet should drop marker lines: %q", got)
	}
}

func TestSearch_StopWordsIgnored(t *testing.T) {
	s := NewFromContent(testCorpus)

	// Every meaningful word here is a stop word or too short, except
	// "interest"; the savings section must still match.
	got := s.Search("what is the interest")
	if !strings.Contains(got, "daily interest") {
		t.Fatalf("Search() = %q", got)
	}
}

func TestSearch_NoMatches(t *testing.T) {
	s := NewFromContent(testCorpus)

	got := s.Search("cryptocurrency staking rewards")
	if got != "No information found for this query. Please check help.gxs.com.sg directly." {
		t.Fatalf("Search() = %q", got)
	}
}

func TestSearch_ShortSectionsSkipped(t *testing.T) {
	s := NewFromContent(testCorpus)

	got := s.Search("short note index")
	if strings.Contains(got, "Too short to index") {
		t.Fatalf("short section should be skipped, got %q", got)
	}
}

func TestSearch_CapsAtThreeUniqueSnippets(t *testing.T) {
	var blocks []string
	for i := 0; i < 6; i++ {
		blocks = append(blocks, strings.Repeat("transfer limits apply to every payment you make with your account ", 3))
	}
	s := NewFromContent(strings.Join(blocks, "\n\n"))

	got := s.Search("transfer limits")
	parts := strings.Split(got, "\n\n---\n\n")
	// All six sections are identical, so dedupe collapses them to one.
	if len(parts) != 1 {
		t.Fatalf("expected snippets to dedupe, got %d parts", len(parts))
	}

	blocks = nil
	for i := 0; i < 6; i++ {
		blocks = append(blocks, strings.Repeat("transfer limits apply to every payment you make with your account ", 3)+
			strings.Repeat("x", i+1))
	}
	s = NewFromContent(strings.Join(blocks, "\n\n"))
	got = s.Search("transfer limits")
	parts = strings.Split(got, "\n\n---\n\n")
	if len(parts) != 3 {
		t.Fatalf("expected 3 snippets, got %d", len(parts))
	}
}

func TestSearch_AllKeywordBonusRanksFirst(t *testing.T) {
	corpus := strings.Join([]string{
		// Matches only "interest"; padded so both sections have similar length.
		"The savings pocket page explains interest crediting schedules and how pockets work for daily goals and more topics.",
		// Matches both "interest" and "rate".
		"The interest rate page lists the current base rate for all accounts and explains when the rate may change over time.",
	}, "\n\n")
	s := NewFromContent(corpus)

	got := s.Search("interest rate")
	first := strings.Split(got, "\n\n---\n\n")[0]
	if !strings.Contains(first, "base rate") {
		t.Fatalf("all-keyword section should rank first, got %q", first)
	}
}

func TestSearch_UnavailableStore(t *testing.T) {
	s := NewFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	if s.Available() {
		t.Fatal("store should be unavailable")
	}
	got := s.Search("anything")
	if got != "Knowledge base not available. Please run kbcrawl first." {
		t.Fatalf("Search() = %q", got)
	}
}

func TestSearch_SnippetTruncation(t *testing.T) {
	long := strings.Repeat("interest rates information for savings accounts in Singapore dollars ", 20)
	s := NewFromContent(long)

	got := s.Search("interest rates")
	if len([]rune(got)) > 600 {
		t.Fatalf("snippet length = %d runes, want <= 600", len([]rune(got)))
	}
}
