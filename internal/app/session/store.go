package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the process-wide credential cache of the terminal client. Init
// reads the cached credential at start-up, Logout clears it.
type Store struct {
	path string

	mu      sync.RWMutex
	current *Principal
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath is ~/.config/octopus/session.json or the OS equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "octopus", "session.json"), nil
}

// Init loads the cached principal. A missing file yields ErrNoSession.
func (s *Store) Init() (Principal, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Principal{}, ErrNoSession
		}
		return Principal{}, fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return Principal{}, fmt.Errorf("session: decode %s: %w", s.path, err)
	}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	return p, nil
}

// Save persists p with owner-only permissions and makes it current.
func (s *Store) Save(p Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	return nil
}

func (s *Store) Current() (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Principal{}, ErrNoSession
	}
	return *s.current, nil
}

// Logout forgets the principal and removes the cached file.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove %s: %w", s.path, err)
	}
	return nil
}
