package export

import (
	"context"
	"sync"
	"time"

	"github.com/jobtrail/jobtrail/pkg/drafts"
)

// MemoryStore keeps encoded documents in memory. It encodes on Put so a
// later mutation of the session cannot leak into a stored snapshot.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte), now: time.Now}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, snap drafts.Snapshot) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	data, err := Encode(snap, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[key] = data
	s.mu.Unlock()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Document, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(key)
	}
	return Decode(data)
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
