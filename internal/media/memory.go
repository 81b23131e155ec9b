package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStore keeps uploaded assets in memory. It backs local development and
// tests where no object store is reachable.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemoryStore returns an empty in-memory asset store. Asset URLs are
// rooted at baseURL, defaulting to memory://assets.
func NewMemoryStore(baseURL string) *MemoryStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = "memory://assets"
	}
	return &MemoryStore{
		objects: make(map[string][]byte),
		baseURL: trimmed,
	}
}

func (m *MemoryStore) Upload(ctx context.Context, key, contentType string, body io.Reader) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return Asset{}, fmt.Errorf("memory store: empty key")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Asset{}, fmt.Errorf("memory store read %s: %w", key, err)
	}

	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()

	return Asset{URL: m.baseURL + "/" + key}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, assetURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.TrimPrefix(assetURL, m.baseURL+"/")
	if key == assetURL || key == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Object returns the stored bytes for an asset URL, for test assertions.
func (m *MemoryStore) Object(assetURL string) ([]byte, bool) {
	key := strings.TrimPrefix(assetURL, m.baseURL+"/")
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len reports how many assets the store currently holds.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ Store = (*MemoryStore)(nil)
