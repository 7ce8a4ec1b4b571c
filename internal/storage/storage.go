// Package storage puts uploaded media somewhere durable and hands back a URL.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ObjectStore is the object storage boundary.
type ObjectStore interface {
	// Put stores body under path and returns its public URL.
	Put(ctx context.Context, path, contentType string, body []byte) (string, error)
	Delete(ctx context.Context, path string) error
	// PathOf returns the storage path for a URL this store produced.
	PathOf(url string) (string, bool)
}

// MemoryStore keeps objects in process. Used in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailPut, when set, is returned by every Put.
	FailPut error
}

const memoryScheme = "memory://"

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, path, contentType string, body []byte) (string, error) {
	if m.FailPut != nil {
		return "", m.FailPut
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), body...)
	return memoryScheme + path, nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return fmt.Errorf("object %s not found", path)
	}
	delete(m.objects, path)
	return nil
}

func (m *MemoryStore) PathOf(url string) (string, bool) {
	if !strings.HasPrefix(url, memoryScheme) {
		return "", false
	}
	return strings.TrimPrefix(url, memoryScheme), true
}

// Has reports whether path is stored.
func (m *MemoryStore) Has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok
}
