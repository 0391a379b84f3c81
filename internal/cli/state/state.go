package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TokenState is the access token judgectl sends to one broker.
type TokenState struct {
	AccessToken string    `json:"access_token"`
	UserID      int64     `json:"user_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the stored token has a known expiry in the past.
func (s TokenState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Store keeps one token per broker base URL in a JSON file.
type Store struct {
	path   string
	Tokens map[string]TokenState `json:"tokens"`
}

// Open reads the store at path. A missing or empty file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, Tokens: make(map[string]TokenState)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || err == nil && len(data) == 0 {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token state failed: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse token state %s failed: %w", path, err)
	}
	if s.Tokens == nil {
		s.Tokens = make(map[string]TokenState)
	}
	return s, nil
}

// Path is the file backing the store.
func (s *Store) Path() string { return s.path }

// Get returns the token stored for baseURL.
func (s *Store) Get(baseURL string) TokenState {
	return s.Tokens[normalize(baseURL)]
}

// Put stores tok for baseURL and writes the file.
func (s *Store) Put(baseURL string, tok TokenState) error {
	s.Tokens[normalize(baseURL)] = tok
	return s.save()
}

// Delete drops the token for baseURL and writes the file.
func (s *Store) Delete(baseURL string) error {
	delete(s.Tokens, normalize(baseURL))
	return s.save()
}

// save replaces the file through a rename so a crash never leaves half a file.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create token state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token state failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".judgectl-state-*")
	if err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token state failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token state failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write token state failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token state failed: %w", err)
	}
	return nil
}

func normalize(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}
