package contentstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by a Remote that does not hold the digest.
var ErrNotFound = errors.New("content not found")

// Remote is the blob store behind the local cache. Put must be idempotent:
// storing the same digest twice is a no-op.
type Remote interface {
	Put(ctx context.Context, digest string, data []byte) error
	Get(ctx context.Context, digest string) ([]byte, error)
}

// MemoryRemote is a process-local Remote used in development and tests.
type MemoryRemote struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryRemote creates an empty MemoryRemote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{blobs: make(map[string][]byte)}
}

func (m *MemoryRemote) Put(ctx context.Context, digest string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[digest]; ok {
		return nil
	}
	m.blobs[digest] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryRemote) Get(ctx context.Context, digest string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[digest]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored blobs.
func (m *MemoryRemote) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
