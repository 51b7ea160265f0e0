package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidName is returned for names that would escape the store directory.
var ErrInvalidName = errors.New("invalid image name")

// ImageStore keeps annotated images of recorded inferences on disk.
type ImageStore struct {
	imagesDir string
	mu        sync.Mutex
}

func NewImageStore(imagesDir string) *ImageStore {
	return &ImageStore{imagesDir: imagesDir}
}

// Save writes data as name in the store directory and returns the full path.
func (s *ImageStore) Save(name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	fullpath := filepath.Join(s.imagesDir, name)
	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image %s: %w", name, err)
	}
	return fullpath, nil
}

// Path resolves name inside the store directory.
func (s *ImageStore) Path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.imagesDir, name), nil
}

// Delete removes name; a missing file is not an error.
func (s *ImageStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image %s: %w", name, err)
	}
	return nil
}

// Clear removes every stored image and returns how many were deleted.
func (s *ImageStore) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.imagesDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read image directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.imagesDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to delete image %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Size returns the total size in bytes of the stored images.
func (s *ImageStore) Size() (int64, error) {
	entries, err := os.ReadDir(s.imagesDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total, nil
}

func validateName(name string) error {
	if name == "" ||
		strings.ContainsRune(name, 0) ||
		strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
