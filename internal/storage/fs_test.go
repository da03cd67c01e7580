package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldline/slacksync/internal/attachment"
)

func TestUploadAndRead(t *testing.T) {
	s := NewFS(t.TempDir())

	key := "slack/src-1/F1/report.pdf"
	err := s.Upload(context.Background(), key, []byte("hello"), attachment.UploadOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"sync_run": "abc"},
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	data, err := s.Read(key)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("read %q, want %q", data, "hello")
	}
}

func TestUploadWritesMetadata(t *testing.T) {
	root := t.TempDir()
	s := NewFS(root)

	key := "slack/src-1/F1/a.txt"
	if err := s.Upload(context.Background(), key, []byte("x"), attachment.UploadOptions{
		ContentType: "text/plain",
	}); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)+".meta.json"))
	if err != nil {
		t.Fatalf("metadata file missing: %v", err)
	}

	var meta struct {
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("invalid metadata JSON: %v", err)
	}
	if meta.ContentType != "text/plain" || meta.Size != 1 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	s := NewFS("")

	if s.IsConfigured() {
		t.Error("empty-root store reports configured")
	}
	if err := s.Upload(context.Background(), "k", nil, attachment.UploadOptions{}); err == nil {
		t.Error("upload on unconfigured store did not fail")
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	s := NewFS(t.TempDir())

	for _, key := range []string{"", "..", "a/../b", "a//b", "./a"} {
		if err := s.Upload(context.Background(), key, []byte("x"), attachment.UploadOptions{}); err == nil {
			t.Errorf("key %q accepted, want rejection", key)
		}
	}
}

func TestReadMissingBlob(t *testing.T) {
	s := NewFS(t.TempDir())
	if _, err := s.Read("slack/none/F0/gone.txt"); err == nil {
		t.Error("expected error for missing blob")
	}
}
