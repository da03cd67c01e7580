// Package attachment decides, per file reference, whether to skip or to
// download and store it. Attachment sync is best-effort: every input file
// yields exactly one Result and failures become skip reasons, never errors.
package attachment

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/fieldline/slacksync/internal/slack"
)

// MaxFileSizeBytes is the per-file download ceiling (10 MiB).
const MaxFileSizeBytes = 10 * 1024 * 1024

// Skip reasons for files that were not stored.
const (
	ReasonMissingURL      = "Missing Slack file URL"
	ReasonNotConfigured   = "storage not configured"
	ReasonSyncDisabled    = "file sync disabled"
	reasonTooLargeFormat  = "file size %d exceeds limit of %d bytes"
	reasonDownloadFailure = "download failed: %v"
	reasonUploadFailure   = "upload failed: %v"
)

// Downloader fetches a private file URL with the given token.
type Downloader interface {
	Download(ctx context.Context, token, url string) ([]byte, error)
}

// UploadOptions carries metadata attached to a stored blob.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Storage is the blob-store contract the pipeline uploads into.
type Storage interface {
	IsConfigured() bool
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error
}

// Result is the outcome for one input file. StorageKey and Skipped are
// mutually exclusive.
type Result struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type,omitempty"`
	URL        string `json:"url,omitempty"`
	Size       int64  `json:"size,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// Request bounds one pipeline run over the files of a single message or
// aggregated thread.
type Request struct {
	Files     []slack.File
	Token     string
	SourceID  string
	KeyPrefix string
	SyncFiles bool
	// Metadata is attached to every uploaded blob.
	Metadata map[string]string
}

// Pipeline downloads message attachments and uploads them to storage.
type Pipeline struct {
	downloader Downloader
	storage    Storage
	log        *zap.Logger
}

// New creates a Pipeline. A nil logger disables logging.
func New(downloader Downloader, storage Storage, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{downloader: downloader, storage: storage, log: log}
}

// Process resolves every file in the request. Files that pass the skip
// checks are downloaded and uploaded concurrently, each independently; one
// file's failure never blocks the others. Output order matches input order
// regardless of completion order.
func (p *Pipeline) Process(ctx context.Context, req Request) []Result {
	results := make([]Result, len(req.Files))

	var wg sync.WaitGroup
	for i, f := range req.Files {
		results[i] = Result{
			ID:       f.ID,
			Name:     f.Name,
			MimeType: f.Mimetype,
			URL:      f.URLPrivate,
			Size:     f.Size,
		}

		if reason, skip := p.skipReason(f, req.SyncFiles); skip {
			results[i].Skipped = true
			results[i].SkipReason = reason
			continue
		}

		wg.Add(1)
		go func(i int, f slack.File) {
			defer wg.Done()
			p.transfer(ctx, req, f, &results[i])
		}(i, f)
	}
	wg.Wait()

	return results
}

// skipReason applies the pre-download checks in priority order.
func (p *Pipeline) skipReason(f slack.File, syncFiles bool) (string, bool) {
	switch {
	case f.URLPrivate == "":
		return ReasonMissingURL, true
	case f.Size > MaxFileSizeBytes:
		return fmt.Sprintf(reasonTooLargeFormat, f.Size, MaxFileSizeBytes), true
	case p.storage == nil || !p.storage.IsConfigured():
		return ReasonNotConfigured, true
	case !syncFiles:
		return ReasonSyncDisabled, true
	}
	return "", false
}

// transfer downloads one file and uploads it under its deterministic key.
func (p *Pipeline) transfer(ctx context.Context, req Request, f slack.File, out *Result) {
	data, err := p.downloader.Download(ctx, req.Token, f.URLPrivate)
	if err != nil {
		p.log.Warn("attachment download failed",
			zap.String("file_id", f.ID),
			zap.Error(err))
		out.Skipped = true
		out.SkipReason = fmt.Sprintf(reasonDownloadFailure, err)
		return
	}

	key := StorageKey(req.KeyPrefix, req.SourceID, f.ID, f.Name)
	err = p.storage.Upload(ctx, key, data, UploadOptions{
		ContentType: f.Mimetype,
		Metadata:    req.Metadata,
	})
	if err != nil {
		p.log.Warn("attachment upload failed",
			zap.String("file_id", f.ID),
			zap.String("key", key),
			zap.Error(err))
		out.Skipped = true
		out.SkipReason = fmt.Sprintf(reasonUploadFailure, err)
		return
	}

	out.StorageKey = key
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// SanitizeFilename keeps [A-Za-z0-9.-] and replaces everything else with
// an underscore.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// StorageKey builds the deterministic blob key for a file.
func StorageKey(prefix, sourceID, fileID, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", prefix, sourceID, fileID, SanitizeFilename(filename))
}
