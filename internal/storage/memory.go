package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ukydev/fleet-registry/internal/errs"
)

// MemoryStore is an in-memory BlobStore for tests and local development.
// It is safe for concurrent use.
type MemoryStore struct {
	name  string
	blobs map[string]memoryBlob
	mu    sync.RWMutex
	now   func() time.Time
}

type memoryBlob struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty store. name appears as the host of presigned URLs.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, blobs: make(map[string]memoryBlob), now: time.Now}
}

// Put stores the content read from r.
func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memoryBlob{data: data, contentType: contentType}
	return nil
}

// Get writes the blob to w.
func (m *MemoryStore) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	blob, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("blob %s: %w", key, errs.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(blob.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Delete removes the blob.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// PresignGet returns a memory:// URL carrying the expiry and file name. It is
// only meaningful to tests and local tooling.
func (m *MemoryStore) PresignGet(_ context.Context, key, fileName string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("blob %s: %w", key, errs.ErrNotFound)
	}
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(m.now().Add(ttl).Unix(), 10))
	q.Set("filename", fileName)
	u := url.URL{Scheme: "memory", Host: m.name, Path: "/" + key, RawQuery: q.Encode()}
	return u.String(), nil
}

// Len is the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

var _ BlobStore = (*MemoryStore)(nil)
