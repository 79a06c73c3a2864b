package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MingHacker/AIKnowledgeBase/pipeline"
	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

// Watcher polls an inbox directory and runs the full pipeline on every
// PDF dropped there, attributing the documents to a fixed user. It is
// the batch alternative to the upload endpoint.
type Watcher struct {
	store     store.DocumentStorer
	processor *pipeline.Processor
	inboxDir  string
	uploadDir string
	userID    uuid.UUID
	interval  time.Duration
	logger    *slog.Logger

	// size last seen per path; a file is ingested once its size holds
	// still for one full tick, so half-copied files are left alone.
	pending map[string]int64
}

func NewWatcher(s store.DocumentStorer, processor *pipeline.Processor, inboxDir, uploadDir string, userID uuid.UUID) *Watcher {
	return &Watcher{
		store:     s,
		processor: processor,
		inboxDir:  inboxDir,
		uploadDir: uploadDir,
		userID:    userID,
		interval:  time.Second,
		logger:    slog.Default(),
		pending:   make(map[string]int64),
	}
}

func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watching inbox", "dir", w.inboxDir, "user_id", w.userID)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		w.logger.Error("read inbox", "dir", w.inboxDir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		path := filepath.Join(w.inboxDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		lastSize, seen := w.pending[path]
		if !seen || lastSize != info.Size() {
			w.pending[path] = info.Size()
			continue
		}
		delete(w.pending, path)

		if err := w.ingest(ctx, path, entry.Name(), info.Size()); err != nil {
			w.logger.Error("ingest failed", "file", path, "error", err)
		}
	}
}

// ingest moves the file into the upload area under a generated name,
// registers the document and processes it. The inbox copy is removed
// only after a successful move, so a crash never loses the source.
func (w *Watcher) ingest(ctx context.Context, path, originalName string, size int64) error {
	if err := os.MkdirAll(w.uploadDir, 0o755); err != nil {
		return err
	}

	now := time.Now().UTC()
	doc := &types.Document{
		ID:               uuid.New(),
		UserID:           w.userID,
		OriginalFilename: originalName,
		FileSizeBytes:    size,
		MimeType:         "application/pdf",
		UploadStatus:     "uploaded",
		ProcessingStatus: types.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	doc.Filename = doc.ID.String() + ".pdf"
	doc.FilePath = filepath.Join(w.uploadDir, doc.Filename)

	if err := moveFile(path, doc.FilePath); err != nil {
		return err
	}

	if err := w.store.SaveDocument(ctx, doc); err != nil {
		return err
	}

	w.logger.Info("ingested from inbox", "file", originalName, "document_id", doc.ID)

	result, err := w.processor.Process(ctx, doc.ID)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		w.logger.Warn("inbox document processed with errors",
			"document_id", doc.ID, "errors", result.Errors)
	}
	return nil
}

// moveFile renames when possible and falls back to copy+remove for
// cross-device inboxes.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
