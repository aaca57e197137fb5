// Package corpus loads the curated disease knowledge base from disk.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leafwise/tomatodoc/internal/domain"
)

// requiredSections must all be present in every corpus document.
// Ordering within the document is free.
var requiredSections = []string{
	"## Key Symptoms",
	"## Favorable Conditions",
	"## Management & Control",
}

// Loader reads markdown corpus documents.
type Loader struct{}

// NewLoader creates a corpus loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads every .md file under dir in lexical order, validates its
// sections, and returns the documents with the file name as source_id.
func (l *Loader) Load(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir %s: %w", dir, err)
	}

	var docs []domain.Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Clean(filepath.Join(dir, e.Name())))
		if err != nil {
			return nil, fmt.Errorf("read corpus file %s: %w", e.Name(), err)
		}

		text := string(data)
		for _, section := range requiredSections {
			if !strings.Contains(text, section) {
				return nil, fmt.Errorf("document %s: missing section %q: %w",
					e.Name(), section, domain.ErrCorpus)
			}
		}

		doc, err := domain.NewDocument(text, e.Name())
		if err != nil {
			return nil, fmt.Errorf("document %s: %w: %w", e.Name(), domain.ErrCorpus, err)
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no corpus documents found in %s: %w", dir, domain.ErrCorpus)
	}
	return docs, nil
}
