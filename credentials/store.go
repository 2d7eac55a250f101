package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const credentialsFileName = "credentials.json"

// Store reads and writes the credential record at a single well-known
// path. Saves are atomic (write-to-temp + rename) and owner-only. The
// store itself does no locking: the token lifecycle manager is its sole
// caller and serializes access.
type Store struct {
	path string

	// claudeCodePath, when non-empty, is checked as a fallback source of
	// credentials (an existing Claude Code login). When credentials came
	// from there, refreshed tokens are mirrored back so both files agree.
	claudeCodePath string
	fromClaudeCode bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClaudeCodePath overrides the Claude Code credential file location
// (primarily for testing). An empty path disables the fallback.
func WithClaudeCodePath(path string) StoreOption {
	return func(s *Store) {
		s.claudeCodePath = path
	}
}

// NewStore creates a store rooted at dir. The directory is created on
// first save, not here.
func NewStore(dir string, options ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("[NewStore] data folder is required")
	}

	s := &Store{path: filepath.Join(dir, credentialsFileName)}
	if home, err := os.UserHomeDir(); err == nil {
		s.claudeCodePath = filepath.Join(home, ".claude", ".credentials.json")
	}

	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Path returns the location of the store's own credential file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current record. It returns (nil, nil) when no
// credentials exist anywhere. The store's own file wins; an existing
// Claude Code login is used as a fallback.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		s.fromClaudeCode = false
		return &rec, nil
	case os.IsNotExist(err):
		// fall through to the Claude Code fallback
	default:
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	rec, err := s.loadClaudeCode()
	if err != nil || rec == nil {
		return nil, err
	}
	s.fromClaudeCode = true
	return rec, nil
}

// Save writes the record atomically with owner-only permissions. A
// reader never observes a partially written record. When the current
// credentials originated from a Claude Code login, the refreshed tokens
// are mirrored back into that file as well.
func (s *Store) Save(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("[Store.Save] record is required")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	if runtime.GOOS != "windows" {
		// Rename preserves the temp file's mode, but be explicit.
		if err := os.Chmod(s.path, 0o600); err != nil {
			return fmt.Errorf("restrict credentials permissions: %w", err)
		}
	}

	if s.fromClaudeCode {
		s.updateClaudeCode(rec)
	}
	return nil
}

// Clear removes the store's own credential file. An existing Claude Code
// file is left alone: it is not ours to delete.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	s.fromClaudeCode = false
	return nil
}
