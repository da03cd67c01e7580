// Package storage provides the local blob store the attachment pipeline
// uploads into.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldline/slacksync/internal/attachment"
)

// FS stores blobs under a root directory, one file per key. An empty root
// means storage is not configured and uploads are skipped upstream.
type FS struct {
	root string
}

// NewFS creates a filesystem store rooted at dir. Pass "" for an
// unconfigured store.
func NewFS(dir string) *FS {
	return &FS{root: dir}
}

// DefaultRoot returns the default blob directory.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".slacksync", "blobs")
}

// IsConfigured reports whether uploads have somewhere to go.
func (s *FS) IsConfigured() bool {
	return s != nil && s.root != ""
}

// blobMeta sits next to each blob as <name>.meta.json.
type blobMeta struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Upload writes data under key, creating parent directories as needed.
// Writes go to a temp file first and are renamed into place so a partial
// write never leaves a corrupt blob behind.
func (s *FS) Upload(ctx context.Context, key string, data []byte, opts attachment.UploadOptions) error {
	if !s.IsConfigured() {
		return fmt.Errorf("storage not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename blob: %w", err)
	}

	meta := blobMeta{
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal blob metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", metaBytes, 0600); err != nil {
		return fmt.Errorf("failed to write blob metadata: %w", err)
	}

	return nil
}

// Read returns the blob stored under key.
func (s *FS) Read(key string) ([]byte, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("storage not configured")
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", key)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// validateKey rejects keys that would escape the store root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty blob key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid blob key: %s", key)
		}
	}
	return nil
}
