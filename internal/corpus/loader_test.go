package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leafwise/tomatodoc/internal/domain"
)

const validDoc = `# Early Blight

**Overview:** A common fungal disease.

## Key Symptoms
- Brown spots with concentric rings

## Favorable Conditions
- Warm temperatures

## Management & Control
- Remove infected lower leaves

**Notes:** Often confused with Septoria.
`

// Same sections, shuffled order: the loader must accept it.
const reorderedDoc = `# Late Blight

## Management & Control
- Remove and destroy infected plants

## Key Symptoms
- Water-soaked lesions

## Favorable Conditions
- Cool, wet weather
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "late-blight.md", reorderedDoc)
	writeFile(t, dir, "early-blight.md", validDoc)
	writeFile(t, dir, "notes.txt", "not a corpus file")

	docs, err := NewLoader().Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	// Lexical order, file name as source_id.
	if docs[0].SourceID() != "early-blight.md" || docs[1].SourceID() != "late-blight.md" {
		t.Errorf("unexpected source ids: %s, %s", docs[0].SourceID(), docs[1].SourceID())
	}
	if docs[0].Text() != validDoc {
		t.Error("document text altered by loader")
	}
}

func TestLoad_MissingSection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.md", "# Broken\n\n## Key Symptoms\n- spots\n")

	_, err := NewLoader().Load(dir)
	if !errors.Is(err, domain.ErrCorpus) {
		t.Fatalf("expected ErrCorpus, got %v", err)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := NewLoader().Load(t.TempDir())
	if !errors.Is(err, domain.ErrCorpus) {
		t.Fatalf("expected ErrCorpus for empty corpus, got %v", err)
	}
}

func TestLoad_MissingDir(t *testing.T) {
	if _, err := NewLoader().Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
