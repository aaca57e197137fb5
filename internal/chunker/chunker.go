// Package chunker splits documents into overlapping text windows for
// embedding and retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/leafwise/tomatodoc/internal/domain"
)

// Cut points are preferred in this order, mirroring paragraph, line,
// sentence, and word boundaries before a hard character cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// Config holds the chunking constants. They are part of the index's
// implicit schema: build and rebuild must use the same values.
type Config struct {
	Size    int // maximum chunk length in bytes
	Overlap int // tail bytes shared with the following chunk
}

// Chunker produces deterministic, overlapping chunks.
type Chunker struct {
	size    int
	overlap int
}

// New validates the configuration and creates a Chunker.
// Size must exceed twice the overlap so that every chunk is strictly
// longer than the overlap, which keeps the shared region exact and the
// original text reconstructible from the chunk sequence.
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", cfg.Size, domain.ErrInvalidArgument)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d: %w", cfg.Overlap, domain.ErrInvalidArgument)
	}
	if cfg.Size <= 2*cfg.Overlap {
		return nil, fmt.Errorf("chunk size %d must exceed twice the overlap %d: %w",
			cfg.Size, cfg.Overlap, domain.ErrInvalidArgument)
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap}, nil
}

// Chunk splits a document into ordered chunks. Each chunk after the
// first begins exactly overlap bytes before the end of its predecessor,
// so concatenating the chunks minus the shared regions reconstructs the
// document byte-for-byte. No chunk is empty and no trailing text is
// dropped. The split is a pure function of the text and configuration.
func (c *Chunker) Chunk(doc domain.Document) []domain.Chunk {
	text := doc.Text()
	if text == "" {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	seq := 0
	for {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, domain.ReconstructChunk(text[start:], doc.SourceID(), seq))
			return chunks
		}
		end = c.cut(text, start, end)
		chunks = append(chunks, domain.ReconstructChunk(text[start:end], doc.SourceID(), seq))
		start = end - c.overlap
		seq++
	}
}

// cut picks the split point for a chunk starting at start whose hard
// limit is hardEnd. It scans backwards for the best separator, but
// never earlier than start+overlap+1 so the chunk stays longer than the
// overlap. A hard cut backs off to a rune boundary.
func (c *Chunker) cut(text string, start, hardEnd int) int {
	floor := start + c.overlap + 1

	for _, sep := range separators {
		window := text[floor:hardEnd]
		if i := strings.LastIndex(window, sep); i >= 0 {
			return floor + i + len(sep)
		}
	}

	end := hardEnd
	for end > floor && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}
