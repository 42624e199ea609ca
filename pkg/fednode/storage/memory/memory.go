package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/datafed/fednode/pkg/fednode"
)

// Backend is an in-memory implementation of the fednode.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	updated map[string]time.Time
}

// New creates a new in-memory storage backend
func New() fednode.BlobStore {
	return &Backend{
		blobs:   make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[key] = data
	b.updated[key] = time.Now().UTC()
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[key]
	if !exists {
		return nil, fednode.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.blobs[key]; !exists {
		return fednode.ErrBlobNotFound
	}
	delete(b.blobs, key)
	delete(b.updated, key)
	return nil
}

// Meta retrieves metadata for a stored blob
func (b *Backend) Meta(ctx context.Context, key string) (*fednode.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.blobs[key]
	if !exists {
		return nil, fednode.ErrBlobNotFound
	}
	return &fednode.BlobMeta{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: "application/octet-stream",
		UpdatedAt:   b.updated[key],
	}, nil
}
