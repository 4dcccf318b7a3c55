package indexer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/models"
)

func TestNewSplitter_invalid(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 0},
		{100, 100},
		{100, 150},
		{100, -1},
	}
	for _, tt := range tests {
		if _, err := NewSplitter(tt.size, tt.overlap, nil); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("NewSplitter(%d, %d): got %v", tt.size, tt.overlap, err)
		}
	}
}

func TestSplit_shortText(t *testing.T) {
	s, _ := NewSplitter(100, 10, nil)
	got := s.Split("  Hello world.  ")
	if len(got) != 1 || got[0] != "Hello world." {
		t.Errorf("got %q", got)
	}
	if got := s.Split(" \n\n \t"); len(got) != 0 {
		t.Errorf("whitespace only: got %q", got)
	}
}

func TestSplit_paragraphsFirst(t *testing.T) {
	s, _ := NewSplitter(30, 0, nil)
	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird one."
	got := s.Split(text)
	want := []string{"First paragraph here.", "Second paragraph here.", "Third one."}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_mergesSmallPieces(t *testing.T) {
	s, _ := NewSplitter(50, 0, nil)
	got := s.Split("a\n\nb\n\nc")
	if len(got) != 1 || got[0] != "a\n\nb\n\nc" {
		t.Errorf("got %q", got)
	}
}

func TestSplit_overlap(t *testing.T) {
	s, _ := NewSplitter(10, 4, nil)
	got := s.Split("aa bb cc dd ee ff gg")
	if len(got) < 2 {
		t.Fatalf("expected several chunks, got %q", got)
	}
	for i := 1; i < len(got); i++ {
		prev := strings.Fields(got[i-1])
		cur := strings.Fields(got[i])
		if prev[len(prev)-1] != cur[0] {
			t.Errorf("chunk %d %q should start with the last word of %q", i, got[i], got[i-1])
		}
	}
}

func TestSplit_sizeBoundAndDeterminism(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Kura splits documents into retrievable chunks, ")
		if i%7 == 0 {
			b.WriteString("\n\n")
		} else if i%3 == 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString(strings.Repeat("x", 130))
	b.WriteString(" ünïcödé ñ 日本語のテキスト")
	text := b.String()

	for _, cfg := range [][2]int{{100, 20}, {50, 0}, {1000, 200}, {7, 3}} {
		s, err := NewSplitter(cfg[0], cfg[1], nil)
		if err != nil {
			t.Fatal(err)
		}
		first := s.Split(text)
		second := s.Split(text)
		if len(first) != len(second) {
			t.Fatalf("size %d: non-deterministic chunk count", cfg[0])
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("size %d: chunk %d differs between runs", cfg[0], i)
			}
			if n := utf8.RuneCountInString(first[i]); n > cfg[0] {
				t.Errorf("size %d: chunk %d has %d runes", cfg[0], i, n)
			}
			if first[i] == "" || strings.TrimSpace(first[i]) != first[i] {
				t.Errorf("size %d: chunk %d not trimmed: %q", cfg[0], i, first[i])
			}
		}
	}
}

func TestSplit_unsplittableWithoutRuneSeparator(t *testing.T) {
	s, _ := NewSplitter(5, 0, []string{" "})
	got := s.Split("abcdefghij kl")
	if len(got) != 2 || got[0] != "abcdefghij" || got[1] != "kl" {
		t.Errorf("got %q", got)
	}
}

func TestChunkPages(t *testing.T) {
	s, _ := NewSplitter(20, 0, nil)
	pages := []models.Page{
		{Number: 1, Text: "Page one text.\r\nMore of page one."},
		{Number: 2, Text: "   "},
		{Number: 3, Text: "Page three\x00 text."},
	}
	chunks := s.ChunkPages("report.pdf", pages)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	ids := make(map[string]bool)
	for i, c := range chunks {
		if c.Metadata.ChunkIndex != i || c.Metadata.Source != "report.pdf" {
			t.Errorf("chunk %d metadata: %+v", i, c.Metadata)
		}
		if ids[c.ID] || c.ID == "" {
			t.Errorf("chunk %d: duplicate or empty id %q", i, c.ID)
		}
		ids[c.ID] = true
		if strings.ContainsAny(c.Content, "\r\x00") {
			t.Errorf("chunk %d not normalized: %q", i, c.Content)
		}
	}
	if chunks[0].Metadata.Page != 1 || chunks[1].Metadata.Page != 1 || chunks[2].Metadata.Page != 3 {
		t.Errorf("pages: %d %d %d", chunks[0].Metadata.Page, chunks[1].Metadata.Page, chunks[2].Metadata.Page)
	}
	if chunks[2].Content != "Page three text." {
		t.Errorf("got %q", chunks[2].Content)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("a\r\nb\rc\x00d\n"); got != "a\nb\ncd\n" {
		t.Errorf("got %q", got)
	}
}
