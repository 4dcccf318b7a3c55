package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/models"
)

// Splitter splits text recursively on a priority list of separators, merging the pieces
// into chunks of at most size runes that share up to overlap runes with their neighbour.
// A single piece that cannot be split further may exceed size.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter returns a splitter. nil separators means config.DefaultSeparators.
func NewSplitter(size, overlap int, separators []string) (*Splitter, error) {
	if size <= 0 {
		return nil, apperr.Validation("chunk", "", "chunk_size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, apperr.Validation("chunk", "", "chunk_overlap must be in [0, %d), got %d", size, overlap)
	}
	if separators == nil {
		separators = config.DefaultSeparators
	}
	return &Splitter{size: size, overlap: overlap, separators: separators}, nil
}

// Split returns the trimmed, non-empty chunks of text in document order.
func (s *Splitter) Split(text string) []string {
	raw := s.split(text, s.separators)
	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := ""
	if len(separators) > 0 {
		separator = separators[len(separators)-1]
	}
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge packs pieces into windows of at most size runes. When a window is full it is
// emitted and pieces are dropped from its front until at most overlap runes remain.
// Pieces already carry their separator, so they are joined without one.
func (s *Splitter) merge(pieces []string) []string {
	var out, current []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeepingSeparator splits text on sep, attaching each separator to the start of the
// piece that follows it. An empty sep splits into runes. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.Split(text, sep)
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ChunkPages splits every page and returns the chunks with their source, 1-based page
// number and a chunk index running across the whole document.
func (s *Splitter) ChunkPages(source string, pages []models.Page) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range pages {
		for _, text := range s.Split(Normalize(page.Text)) {
			chunks = append(chunks, models.Chunk{
				ID:      uuid.New().String(),
				Content: text,
				Metadata: models.ChunkMetadata{
					Source:     source,
					Page:       page.Number,
					ChunkIndex: len(chunks),
				},
			})
		}
	}
	return chunks
}
