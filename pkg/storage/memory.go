package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBlobStore is an in-memory BlobStore used in tests and local
// development. It enforces the same write-once Put semantics as the S3
// implementation.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// FailPut, when set, makes every Put fail with this error.
	FailPut error
	// FailRemove, when set, reports every path as a removal failure.
	FailRemove error
}

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string]memoryObject),
	}
}

// Put stores content at path, failing if the path is occupied.
func (m *MemoryBlobStore) Put(ctx context.Context, path string, content io.Reader, contentType string) error {
	if m.FailPut != nil {
		return m.FailPut
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[path]; exists {
		return fmt.Errorf("put %s: %w", path, ErrPathOccupied)
	}
	m.objects[path] = memoryObject{
		data:         data,
		contentType:  contentType,
		lastModified: time.Now(),
	}
	return nil
}

// Remove deletes the given paths. Missing paths are ignored.
func (m *MemoryBlobStore) Remove(ctx context.Context, paths []string) []RemoveFailure {
	if m.FailRemove != nil {
		failures := make([]RemoveFailure, 0, len(paths))
		for _, p := range paths {
			failures = append(failures, RemoveFailure{Path: p, Err: m.FailRemove})
		}
		return failures
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

// SignedURL returns a deterministic fake URL for the stored path.
func (m *MemoryBlobStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.objects[path]; !exists {
		return "", fmt.Errorf("no object at path %s", path)
	}
	return fmt.Sprintf("memory://%s?expires=%d", path, int64(ttl.Seconds())), nil
}

// List returns all objects under prefix, sorted by path.
func (m *MemoryBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectInfo
	for path, obj := range m.objects {
		if strings.HasPrefix(path, prefix) {
			objects = append(objects, ObjectInfo{
				Path:         path,
				Size:         int64(len(obj.data)),
				LastModified: obj.lastModified,
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

// HealthCheck always succeeds.
func (m *MemoryBlobStore) HealthCheck(ctx context.Context) error { return nil }

// Exists reports whether an object is stored at path.
func (m *MemoryBlobStore) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok
}

// Get returns the stored content for path, for test assertions.
func (m *MemoryBlobStore) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

// SetLastModified overrides an object's timestamp, for reconciler tests.
func (m *MemoryBlobStore) SetLastModified(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[path]; ok {
		obj.lastModified = t
		m.objects[path] = obj
	}
}
