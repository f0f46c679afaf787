// Package attach stores downloaded attachments on disk, keyed by their
// opaque transport reference.
package attach

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DiskStore implements domain.AttachmentStore as one JPEG file per
// reference under a single directory.
type DiskStore struct {
	dir    string
	logger *slog.Logger
}

func NewDiskStore(dir string, logger *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create attachments directory %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, logger: logger}, nil
}

func (d *DiskStore) path(ref string) string {
	// Base strips any path separators a hostile ref could carry.
	return filepath.Join(d.dir, filepath.Base(ref)+".jpg")
}

// Save persists data and returns the canonical reference Load accepts.
func (d *DiskStore) Save(ref string, data []byte) (string, error) {
	canonical := filepath.Base(ref)
	p := d.path(canonical)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("save attachment %s: %w", ref, err)
	}
	d.logger.Debug("attachment saved", "ref", canonical, "path", p, "bytes", len(data))
	return canonical, nil
}

func (d *DiskStore) Load(ref string) ([]byte, error) {
	data, err := os.ReadFile(d.path(ref))
	if err != nil {
		return nil, fmt.Errorf("load attachment %s: %w", ref, err)
	}
	return data, nil
}

// ClearAll removes every stored attachment, leaving the directory in place.
func (d *DiskStore) ClearAll() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("clear attachments: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, entry.Name())); err != nil {
			return fmt.Errorf("clear attachments: %w", err)
		}
	}
	d.logger.Info("attachments directory cleared", "dir", d.dir)
	return nil
}
