package domain

import "fmt"

// Document is a loaded corpus file (immutable value object).
// Created at corpus-load time, never mutated, superseded only by a full
// index rebuild.
type Document struct {
	text     string
	sourceID string
}

// NewDocument validates and creates a Document.
func NewDocument(text, sourceID string) (Document, error) {
	if sourceID == "" {
		return Document{}, fmt.Errorf("source ID is required")
	}
	if text == "" {
		return Document{}, fmt.Errorf("document %s has empty text", sourceID)
	}
	return Document{text: text, sourceID: sourceID}, nil
}

// Text returns the full document text.
func (d *Document) Text() string { return d.text }

// SourceID returns the corpus file identifier.
func (d *Document) SourceID() string { return d.sourceID }

// Chunk is a bounded text window extracted from a Document, the unit of
// retrieval. Seq orders chunks within their parent document.
type Chunk struct {
	text     string
	sourceID string
	seq      int
}

// NewChunk validates and creates a Chunk.
func NewChunk(text, sourceID string, seq int) (Chunk, error) {
	if text == "" {
		return Chunk{}, fmt.Errorf("chunk %s#%d has empty text", sourceID, seq)
	}
	if sourceID == "" {
		return Chunk{}, fmt.Errorf("chunk #%d has no source ID", seq)
	}
	if seq < 0 {
		return Chunk{}, fmt.Errorf("chunk %s has negative sequence %d", sourceID, seq)
	}
	return Chunk{text: text, sourceID: sourceID, seq: seq}, nil
}

// ReconstructChunk creates a Chunk without validation (storage hydration).
func ReconstructChunk(text, sourceID string, seq int) Chunk {
	return Chunk{text: text, sourceID: sourceID, seq: seq}
}

// Text returns the chunk text.
func (c *Chunk) Text() string { return c.text }

// SourceID returns the identifier of the parent document.
func (c *Chunk) SourceID() string { return c.sourceID }

// Seq returns the chunk's position within its parent document.
func (c *Chunk) Seq() int { return c.seq }
