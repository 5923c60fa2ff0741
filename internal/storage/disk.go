package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps raw payloads on the local filesystem under
// root/<ownerID>/<documentID>. Owner and document ids are UUIDs, but the
// paths are still sanitised so a malformed id can never escape the root.
type DiskStore struct {
	root string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) path(ownerID, documentID string) (string, error) {
	if !safeSegment(ownerID) || !safeSegment(documentID) {
		return "", fmt.Errorf("storage: invalid object key %q/%q", ownerID, documentID)
	}
	return filepath.Join(s.root, ownerID, documentID), nil
}

func (s *DiskStore) SaveRaw(ownerID, documentID string, data []byte) error {
	p, err := s.path(ownerID, documentID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Write-then-rename so a crashed upload never leaves a partial object.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *DiskStore) FetchRaw(ownerID, documentID string) ([]byte, error) {
	p, err := s.path(ownerID, documentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, ownerID, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (s *DiskStore) DeleteRaw(ownerID, documentID string) error {
	p, err := s.path(ownerID, documentID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
