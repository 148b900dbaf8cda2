package store

import (
	"sync"

	"github.com/go-authgate/boxsession/auth"
)

// MemoryStore keeps credentials in process memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	infos  map[string]*auth.AuthInfo
	lastID string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{infos: make(map[string]*auth.AuthInfo)}
}

var _ auth.Storage = (*MemoryStore)(nil)

func (s *MemoryStore) Store(infos map[string]*auth.AuthInfo, lastUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = cloneMap(infos)
	s.lastID = lastUserID
	return nil
}

func (s *MemoryStore) Load() (map[string]*auth.AuthInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.infos), nil
}

func (s *MemoryStore) LastUserID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, nil
}

func (s *MemoryStore) ClearLastUserID() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = ""
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = make(map[string]*auth.AuthInfo)
	s.lastID = ""
	return nil
}

func cloneMap(in map[string]*auth.AuthInfo) map[string]*auth.AuthInfo {
	out := make(map[string]*auth.AuthInfo, len(in))
	for id, info := range in {
		out[id] = info.Clone()
	}
	return out
}
