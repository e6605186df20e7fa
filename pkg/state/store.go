package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Acquire when another cycle holds the state lock.
var ErrLocked = errors.New("state file is locked by another cycle")

// Store reads and writes the RunState file. Writes are atomic
// (temp file + rename) so a crash mid-write never corrupts the file.
// Acquire must be held for the duration of a cycle; overlapping scheduler
// invocations fail fast instead of double-counting attempts.
type Store struct {
	filePath string
	lock     *flock.Flock
	mutex    sync.Mutex
}

func NewStore(filePath string) *Store {
	return &Store{
		filePath: filePath,
		lock:     flock.New(filePath + ".lock"),
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.filePath
}

// Acquire takes the exclusive advisory lock without blocking. It returns
// ErrLocked when the lock is already held elsewhere.
func (s *Store) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, s.lock.Path())
	}
	return nil
}

// Release drops the advisory lock. Safe to call when not held.
func (s *Store) Release() error {
	return s.lock.Unlock()
}

// Load reads the state file. A missing or empty file yields a fresh state;
// any other read or decode failure is surfaced so the cycle can refuse to
// run on unreadable state.
func (s *Store) Load() (*RunState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return New(), nil
	}

	st := New()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	st.normalize()
	return st, nil
}

// Save writes the state atomically: marshal, write a temp file alongside,
// rename over the target.
func (s *Store) Save(st *RunState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
