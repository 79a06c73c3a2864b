package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MingHacker/AIKnowledgeBase/app/middleware"
	"github.com/MingHacker/AIKnowledgeBase/pipeline"
	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

type DocumentHandler struct {
	store     store.DBStorer
	processor *pipeline.Processor
	index     store.VectorIndex

	uploadDir      string
	maxUploadBytes int64
}

func NewDocumentHandler(s store.DBStorer, processor *pipeline.Processor, index store.VectorIndex, uploadDir string, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{
		store:          s,
		processor:      processor,
		index:          index,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// HandleUpload stores a PDF on disk under a generated name and records
// it as pending. Processing is a separate call.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	userID := mustUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	if fileHeader.Size > h.maxUploadBytes {
		return NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".pdf" {
		return NewError(fiber.StatusBadRequest, "only PDF files are supported")
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return err
	}

	now := time.Now().UTC()
	doc := &types.Document{
		ID:               uuid.New(),
		UserID:           userID,
		OriginalFilename: fileHeader.Filename,
		FileSizeBytes:    fileHeader.Size,
		MimeType:         fileHeader.Header.Get("Content-Type"),
		UploadStatus:     "uploaded",
		ProcessingStatus: types.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	doc.Filename = doc.ID.String() + ext
	doc.FilePath = filepath.Join(h.uploadDir, doc.Filename)

	if err := c.SaveFile(fileHeader, doc.FilePath); err != nil {
		return err
	}

	if err := h.store.SaveDocument(c.Context(), doc); err != nil {
		os.Remove(doc.FilePath)
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []types.Document{}
	}
	return c.JSON(docs)
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetUserDocument(c.Context(), mustUserID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

// HandleDelete removes the record, its vectors and the file on disk.
// Chunk rows go with the document via the foreign key cascade.
func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}
	userID := mustUserID(c)

	doc, err := h.store.GetUserDocument(c.Context(), userID, id)
	if err != nil {
		return err
	}

	if err := h.index.DeleteByDocument(c.Context(), id); err != nil {
		return err
	}
	if err := h.store.DeleteDocument(c.Context(), userID, id); err != nil {
		return err
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return c.JSON(fiber.Map{"result": "deleted"})
}

func (h *DocumentHandler) HandleProcess(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}
	if _, err := h.store.GetUserDocument(c.Context(), mustUserID(c), id); err != nil {
		return err
	}

	result, err := h.processor.Process(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *DocumentHandler) HandleReprocess(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}
	if _, err := h.store.GetUserDocument(c.Context(), mustUserID(c), id); err != nil {
		return err
	}

	result, err := h.processor.Reprocess(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *DocumentHandler) HandleStatus(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}
	if _, err := h.store.GetUserDocument(c.Context(), mustUserID(c), id); err != nil {
		return err
	}

	report, err := h.processor.Status(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (h *DocumentHandler) HandleJobs(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}
	if _, err := h.store.GetUserDocument(c.Context(), mustUserID(c), id); err != nil {
		return err
	}

	jobs, err := h.store.JobsByDocument(c.Context(), id)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []types.ProcessingJob{}
	}
	return c.JSON(jobs)
}

func (h *DocumentHandler) HandleBulkProcess(c *fiber.Ctx) error {
	result, err := h.processor.BulkProcess(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// mustUserID reads the identity the middleware put in locals. Routes
// without the middleware never reach handlers that call this.
func mustUserID(c *fiber.Ctx) uuid.UUID {
	return c.Locals(middleware.UserIDKey).(uuid.UUID)
}

func idParam(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}
