// Package metadata persists the drive's authoritative metadata
// document: a single JSON file holding the folder and file collections.
// The document is read in full and rewritten in full on every mutation;
// there are no partial writes and no cross-process locking. The store's
// mutex serializes read-modify-write cycles within this process, which
// is the single writer by design.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"drivesync/pkg/log"
	"drivesync/pkg/models"
)

const documentPerm = 0644

// Store reads and rewrites the metadata document.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a store backed by the document at path. The document
// does not have to exist yet; a missing file reads as an empty document.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing document path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full document. A missing file yields an empty
// document; unparseable content yields ErrCorruptDocument.
func (s *Store) Load() (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Update loads the document, applies mutate, and rewrites the document
// in full. The mutation and write happen under the store lock so
// concurrent handlers in this process cannot interleave their
// read-modify-write cycles. If mutate returns an error nothing is
// written and the error is returned as-is.
func (s *Store) Update(mutate func(doc *models.Document) error) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return models.Document{}, err
	}

	if err := mutate(&doc); err != nil {
		return models.Document{}, err
	}

	if err := s.write(doc); err != nil {
		return models.Document{}, err
	}

	return doc, nil
}

func (s *Store) read() (models.Document, error) {
	doc := models.Document{Folders: []models.Folder{}, Files: []models.File{}}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read metadata document: %w", err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Metadata document is not valid JSON")
		return models.Document{}, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}

	if doc.Folders == nil {
		doc.Folders = []models.Folder{}
	}
	if doc.Files == nil {
		doc.Files = []models.File{}
	}

	return doc, nil
}

func (s *Store) write(doc models.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize metadata document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, documentPerm); err != nil {
		return fmt.Errorf("failed to write metadata document: %w", err)
	}

	log.Debug().
		Str("path", s.path).
		Int("folders", len(doc.Folders)).
		Int("files", len(doc.Files)).
		Msg("Metadata document written")

	return nil
}
