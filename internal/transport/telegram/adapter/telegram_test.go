package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	got := splitText("hello\nworld", 100)
	if len(got) != 1 || got[0] != "hello\nworld" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersLineBreaks(t *testing.T) {
	line := strings.Repeat("a", 6) + "\n"
	got := splitText(strings.Repeat(line, 5), 15)
	for _, c := range got {
		if utf8.RuneCountInString(c) > 15 {
			t.Fatalf("chunk over limit: %q", c)
		}
		if strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps trailing newline: %q", c)
		}
	}
	if strings.Join(got, "\n") != strings.TrimRight(strings.Repeat(line, 5), "\n") {
		t.Fatalf("content lost: %q", got)
	}
}

func TestSplitTextHardSplitsLongLine(t *testing.T) {
	got := splitText(strings.Repeat("é", 25), 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3: %q", len(got), got)
	}
	if utf8.RuneCountInString(got[2]) != 5 {
		t.Fatalf("last chunk = %q", got[2])
	}
}
