// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

var _ database.ProfileStore = (*MockProfileStore)(nil)

// MockProfileStore is an in-memory implementation of database.ProfileStore
type MockProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]watermark.Profile

	// Error injection
	GetError error
	SetError error
}

// NewMockProfileStore creates a new empty mock profile store
func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{
		profiles: make(map[string]watermark.Profile),
	}
}

// Get returns a copy of the stored profile, or nil
func (m *MockProfileStore) Get(ctx context.Context, userID string) (*watermark.Profile, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Set stores a normalized copy of the profile
func (m *MockProfileStore) Set(ctx context.Context, userID string, p watermark.Profile) error {
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p = p.Normalize()
	p.UpdatedAt = time.Now()
	m.profiles[userID] = p
	return nil
}

// Close is a no-op
func (m *MockProfileStore) Close() error {
	return nil
}

// Count returns the number of stored profiles
func (m *MockProfileStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}
