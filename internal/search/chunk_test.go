package search

import (
	"strings"
	"testing"
)

func Test_ChunkText_EmptyInput(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "\n\n\n\n"} {
		if got := ChunkText(in, 100); len(got) != 0 {
			t.Errorf("input %q: want no chunks, got %d", in, len(got))
		}
	}
}

func Test_ChunkText_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()
	got := ChunkText("a short note", 100)
	if len(got) != 1 || got[0] != "a short note" {
		t.Errorf("want single chunk, got %q", got)
	}
}

func Test_ChunkText_PacksParagraphs(t *testing.T) {
	t.Parallel()
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"

	got := ChunkText(text, 40)
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d: %q", len(got), got)
	}
	if !strings.Contains(got[0], "first") || !strings.Contains(got[0], "second") {
		t.Errorf("first chunk should pack two paragraphs, got %q", got[0])
	}
	if !strings.Contains(got[1], "third") {
		t.Errorf("second chunk should hold the overflow paragraph, got %q", got[1])
	}
}

func Test_ChunkText_SplitsOversizedParagraph(t *testing.T) {
	t.Parallel()
	text := "One sentence here. Another sentence here. A third sentence here."

	got := ChunkText(text, 30)
	if len(got) < 2 {
		t.Fatalf("oversized paragraph must split, got %d chunks", len(got))
	}
	for _, c := range got {
		if len(c) > 30 {
			t.Errorf("chunk exceeds limit: %d chars: %q", len(c), c)
		}
	}
	joined := strings.Join(got, " ")
	for _, word := range []string{"One", "Another", "third"} {
		if !strings.Contains(joined, word) {
			t.Errorf("content lost in split: %q missing", word)
		}
	}
}

func Test_ChunkText_HardSplitsGiantSentence(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 95)

	got := ChunkText(text, 30)
	if len(got) != 4 {
		t.Fatalf("want 4 chunks (30+30+30+5), got %d", len(got))
	}
	total := 0
	for _, c := range got {
		total += len(c)
	}
	if total != 95 {
		t.Errorf("want all 95 chars preserved, got %d", total)
	}
}

func Test_ChunkText_DefaultSize(t *testing.T) {
	t.Parallel()
	got := ChunkText("hello", 0)
	if len(got) != 1 {
		t.Errorf("zero maxChars must fall back to the default, got %q", got)
	}
}
