package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sosnet/realtime/src/types"
)

// ErrNoCredentials is returned when nothing is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is what a login leaves behind.
type Credentials struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
}

// Store persists credentials between runs.
type Store interface {
	Load() (*Credentials, error)
	Save(c *Credentials) error
	Clear() error
}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewMemoryStore returns a store seeded with c, which may be nil.
func NewMemoryStore(c *Credentials) *MemoryStore {
	return &MemoryStore{creds: c}
}

// Load returns a copy of the stored credentials.
func (s *MemoryStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, ErrNoCredentials
	}
	cp := *s.creds
	return &cp, nil
}

// Save replaces the stored credentials with a copy of c.
func (s *MemoryStore) Save(c *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.creds = &cp
	return nil
}

// Clear forgets the stored credentials.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the credentials file. A missing file or empty token yields ErrNoCredentials.
func (s *FileStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if c.AccessToken == "" {
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// Save writes c to the file with mode 0600, creating parent directories.
func (s *FileStore) Save(c *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes the credentials file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
