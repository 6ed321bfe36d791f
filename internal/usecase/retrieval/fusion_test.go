package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExcerpt_ShortTextUnchanged(t *testing.T) {
	if got := excerpt("  short text  "); got != "short text" {
		t.Errorf("excerpt = %q, want trimmed input", got)
	}
}

func TestExcerpt_TruncatesLongText(t *testing.T) {
	text := strings.Repeat("a", excerptMaxChars+50)

	got := excerpt(text)

	want := strings.Repeat("a", excerptMaxChars) + "..."
	if got != want {
		t.Errorf("excerpt length = %d, want %d", len(got), len(want))
	}
}

func TestExcerpt_MultiByteRuneAtBoundary(t *testing.T) {
	// An "é" straddling the cut point must survive whole, never as an
	// orphaned lead byte.
	text := strings.Repeat("a", excerptMaxChars-1) + "é" + strings.Repeat("b", 100)

	got := excerpt(text)

	if !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got)
	}
	want := strings.Repeat("a", excerptMaxChars-1) + "é..."
	if got != want {
		t.Errorf("excerpt = %q, want %q", got, want)
	}
	trimmed := strings.TrimSuffix(got, "...")
	if n := utf8.RuneCountInString(trimmed); n != excerptMaxChars {
		t.Errorf("excerpt rune count = %d, want %d", n, excerptMaxChars)
	}
}

func TestExcerpt_AllMultiByte(t *testing.T) {
	text := strings.Repeat("日", excerptMaxChars+10)

	got := excerpt(text)

	if !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got)
	}
	want := strings.Repeat("日", excerptMaxChars) + "..."
	if got != want {
		t.Errorf("excerpt rune count = %d, want %d",
			utf8.RuneCountInString(got), excerptMaxChars+3)
	}
}
