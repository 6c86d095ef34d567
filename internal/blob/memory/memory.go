// Package memory provides an in-memory blob store for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Object is one stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// Store keeps blobs in a map keyed by path. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New builds an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

// PutObject stores the blob and returns a mem:// URI for it.
func (s *Store) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("put object: empty path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return "mem://" + path, nil
}

// GetObject returns a stored blob.
func (s *Store) GetObject(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
