package slot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// FileSlot stores each key as one file under a base directory. Access is
// mutex-guarded so read-modify-write sequences from different goroutines
// never observe partial writes.
type FileSlot struct {
	basePath string
	maxBytes int
	mu       sync.RWMutex
}

// NewFileSlot creates the base directory and returns a file-backed slot.
// maxBytes caps the size of a single value (0 = unlimited); writes past
// the cap fail with ErrQuotaExceeded.
func NewFileSlot(basePath string, maxBytes int) (*FileSlot, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create slot directory: %w", err)
	}
	return &FileSlot{basePath: basePath, maxBytes: maxBytes}, nil
}

// Get reads the value for key. A missing key is not an error.
func (s *FileSlot) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes the value for key atomically (write to temp, rename).
func (s *FileSlot) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return fmt.Errorf("set slot %s (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0644); err != nil {
		return fmt.Errorf("write slot %s: %w", key, classifyWriteError(err))
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit slot %s: %w", key, classifyWriteError(err))
	}
	return nil
}

// Delete removes the key. Deleting a missing key is a no-op.
func (s *FileSlot) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

func (s *FileSlot) path(key string) string {
	return filepath.Join(s.basePath, key+".json")
}

// classifyWriteError maps filesystem failures onto the slot taxonomy:
// a full disk can clear up (temporary), a read-only or missing
// filesystem cannot (permanent).
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return ErrQuotaExceeded
	}
	if errors.Is(err, syscall.EROFS) || errors.Is(err, os.ErrPermission) || os.IsNotExist(err) {
		return ErrUnavailable
	}
	return err
}
