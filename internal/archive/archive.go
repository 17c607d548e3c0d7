// Package archive snapshots raw fetched HTML so failed or disputed scans
// can be replayed. Losing a snapshot never fails a scan.
package archive

import (
	"context"
	"sync"
)

// Noop discards snapshots. Default for deployments without a bucket.
type Noop struct{}

// Put implements scan.ArchiveStore.
func (Noop) Put(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return "noop://" + path, nil
}

// Memory keeps snapshots in a map. Used by tests.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Put implements scan.ArchiveStore.
func (m *Memory) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

// Get returns a stored snapshot, or false when absent.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[path]
	return data, ok
}

// Len reports the number of stored snapshots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
