package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

var (
	// ErrNotFound indicates no document is stored under the requested source.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidSource indicates an empty source label.
	ErrInvalidSource = errors.New("source label must not be empty")
)

// Document is a loaded configuration tree together with its source label.
type Document struct {
	Source   string
	Tree     any
	LoadedAt time.Time
}

// Storage keeps the most recently loaded document for each source label.
type Storage interface {
	Get(source string) (Document, error)
	Put(doc Document) error
	Delete(source string) error
	List() ([]Document, error)
}

// MemoryStorage keeps documents in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu        sync.RWMutex
	documents map[string]Document
}

// NewMemoryStorage initialises an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		documents: make(map[string]Document),
	}
}

// Get returns a defensive copy of the document stored under source.
func (s *MemoryStorage) Get(source string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[source]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Put stores a copy of doc, replacing any previous document for its source.
func (s *MemoryStorage) Put(doc Document) error {
	if strings.TrimSpace(doc.Source) == "" {
		return ErrInvalidSource
	}

	stored := cloneDocument(doc)

	s.mu.Lock()
	s.documents[doc.Source] = stored
	s.mu.Unlock()

	return nil
}

// Delete removes the document stored under source.
func (s *MemoryStorage) Delete(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[source]; !ok {
		return ErrNotFound
	}
	delete(s.documents, source)
	return nil
}

// List returns copies of all stored documents sorted by source label.
func (s *MemoryStorage) List() ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, cloneDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Source < out[j].Source
	})
	return out, nil
}

func cloneDocument(doc Document) Document {
	doc.Tree = yamlloader.Clone(doc.Tree)
	return doc
}
