package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MingHacker/AIKnowledgeBase/chunker"
	"github.com/MingHacker/AIKnowledgeBase/extract"
	"github.com/MingHacker/AIKnowledgeBase/model"
	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

// Result reports the outcome of one document run. The stage booleans
// flip true as stages finish; Errors collects stage failures without
// aborting the report.
type Result struct {
	DocumentID          uuid.UUID `json:"document_id"`
	TextExtraction      bool      `json:"text_extraction"`
	Chunking            bool      `json:"chunking"`
	EmbeddingGeneration bool      `json:"embedding_generation"`
	TotalChunks         int       `json:"total_chunks"`
	Errors              []string  `json:"errors"`
}

// StatusReport is the aggregate view of a document's processing state.
type StatusReport struct {
	DocumentID       uuid.UUID             `json:"document_id"`
	Filename         string                `json:"filename"`
	ProcessingStatus string                `json:"processing_status"`
	TotalPages       int                   `json:"total_pages"`
	TotalCharacters  int                   `json:"total_characters"`
	TotalChunks      int                   `json:"total_chunks"`
	EmbeddedChunks   int                   `json:"embedded_chunks"`
	ProgressPct      float64               `json:"progress_pct"`
	Jobs             []types.ProcessingJob `json:"jobs"`
}

// BulkResult summarizes a sequential run over every eligible document.
type BulkResult struct {
	TotalDocuments int      `json:"total_documents"`
	Processed      int      `json:"processed"`
	Failed         int      `json:"failed"`
	Details        []Result `json:"details"`
}

// Processor drives a document through extraction, chunking and
// embedding. A per-document guard rejects concurrent runs of the same
// document; different documents may run in parallel.
type Processor struct {
	store     store.PipelineStorer
	extractor extract.TextExtractor
	chunker   *chunker.Chunker
	embedder  model.EmbeddingProvider
	index     store.VectorIndex
	batchSize int
	logger    *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]bool
}

func NewProcessor(
	st store.PipelineStorer,
	extractor extract.TextExtractor,
	ch *chunker.Chunker,
	embedder model.EmbeddingProvider,
	index store.VectorIndex,
	batchSize int,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{
		store:     st,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		logger:    slog.Default(),
		active:    make(map[uuid.UUID]bool),
	}
}

func (p *Processor) acquire(documentID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[documentID] {
		return false
	}
	p.active[documentID] = true
	return true
}

func (p *Processor) release(documentID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, documentID)
}

// Process runs the full pipeline for one document. It is fail-soft:
// stage errors land in the result's Errors list and the document status
// records which stage failed, while Process itself returns a non-nil
// error only when the document cannot be loaded or is already running.
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID) (*Result, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if !p.acquire(documentID) {
		return nil, fmt.Errorf("document %s is already being processed", documentID)
	}
	defer p.release(documentID)

	return p.run(ctx, doc), nil
}

// run executes the stages. The caller holds the per-document guard.
func (p *Processor) run(ctx context.Context, doc *types.Document) *Result {
	result := &Result{DocumentID: doc.ID, Errors: []string{}}

	p.logger.Info("processing document",
		"document_id", doc.ID, "filename", doc.OriginalFilename)

	text, ok := p.extractStage(ctx, doc, result)
	if !ok {
		return result
	}

	chunks, ok := p.chunkStage(ctx, doc, text, result)
	if !ok {
		return result
	}

	p.embedStage(ctx, doc, chunks, result)
	return result
}

// extractStage pulls text out of the stored file and records page and
// character totals. An empty extraction is a failure: nothing
// downstream can work with it.
func (p *Processor) extractStage(ctx context.Context, doc *types.Document, result *Result) (string, bool) {
	job := p.startJob(ctx, doc.ID, types.JobExtractText)

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, types.StatusExtracting); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusFailed, err, result)
		return "", false
	}

	extracted, err := p.extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusFailed, err, result)
		return "", false
	}

	p.progress(ctx, job, 50)

	if extracted.Text == "" {
		// The parse worked, there was just nothing in it. The stage flag
		// stays true; the error and status record why nothing follows.
		result.TextExtraction = true
		p.failStage(ctx, doc.ID, job, types.StatusFailed,
			errors.New("No text content extracted"), result)
		return "", false
	}

	if err := p.store.UpdateDocumentExtraction(ctx, doc.ID,
		extracted.PageCount, len(extracted.Text), extracted.Metadata); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusFailed, err, result)
		return "", false
	}

	p.finishJob(ctx, job)
	result.TextExtraction = true

	p.logger.Info("text extracted",
		"document_id", doc.ID, "pages", extracted.PageCount, "characters", len(extracted.Text))
	return extracted.Text, true
}

// chunkStage splits the text and persists the chunk rows. Zero chunks
// from non-empty text means the chunker could not form a single unit,
// which is a failure of this stage.
func (p *Processor) chunkStage(ctx context.Context, doc *types.Document, text string, result *Result) ([]types.DocumentChunk, bool) {
	job := p.startJob(ctx, doc.ID, types.JobGenerateChunks)

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, types.StatusChunking); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusChunkingFailed, err, result)
		return nil, false
	}

	pieces, err := p.chunker.Chunk(text, types.MethodSlidingWindow)
	if err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusChunkingFailed, err, result)
		return nil, false
	}
	if len(pieces) == 0 {
		p.failStage(ctx, doc.ID, job, types.StatusChunkingFailed,
			errors.New("No chunks created"), result)
		return nil, false
	}

	p.progress(ctx, job, 50)

	now := time.Now().UTC()
	chunks := make([]types.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.DocumentChunk{
			ID:             uuid.New(),
			DocumentID:     doc.ID,
			ChunkIndex:     piece.Index,
			Content:        piece.Content,
			ContentType:    "text",
			PageNumber:     piece.PageNumber,
			CharacterCount: piece.CharacterCount,
			WordCount:      piece.WordCount,
			Metadata:       piece.Metadata,
			CreatedAt:      now,
		}
	}

	if err := p.store.SaveChunks(ctx, chunks); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusChunkingFailed, err, result)
		return nil, false
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, types.StatusChunkingCompleted); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusChunkingFailed, err, result)
		return nil, false
	}

	p.finishJob(ctx, job)
	result.Chunking = true
	result.TotalChunks = len(chunks)

	p.logger.Info("chunks created", "document_id", doc.ID, "chunks", len(chunks))
	return chunks, true
}

// embedStage generates vectors in batches and stores them one by one.
// Generation covers the first half of the job's progress, storage the
// second half.
func (p *Processor) embedStage(ctx context.Context, doc *types.Document, chunks []types.DocumentChunk, result *Result) {
	job := p.startJob(ctx, doc.ID, types.JobCreateEmbeddings)

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, types.StatusEmbedding); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusEmbeddingFailed, err, result)
		return
	}

	total := len(chunks)
	vectors := make([][]float32, 0, total)

	for i := 0; i < total; i += p.batchSize {
		end := i + p.batchSize
		if end > total {
			end = total
		}

		texts := make([]string, 0, end-i)
		for _, chunk := range chunks[i:end] {
			texts = append(texts, chunk.Content)
		}

		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			p.failStage(ctx, doc.ID, job, types.StatusEmbeddingFailed, err, result)
			return
		}
		vectors = append(vectors, batch...)

		pct := end * 50 / total
		if pct > 50 {
			pct = 50
		}
		p.progress(ctx, job, pct)
	}

	for i, chunk := range chunks {
		embeddingID, err := p.index.Upsert(ctx, store.VectorEntry{
			ChunkID:          chunk.ID,
			DocumentID:       doc.ID,
			UserID:           doc.UserID,
			Content:          chunk.Content,
			PageNumber:       chunk.PageNumber,
			ChunkIndex:       chunk.ChunkIndex,
			DocumentFilename: doc.OriginalFilename,
			Embedding:        vectors[i],
		})
		if err != nil {
			p.failStage(ctx, doc.ID, job, types.StatusEmbeddingFailed, err, result)
			return
		}

		if err := p.store.SetChunkEmbeddingID(ctx, chunk.ID, embeddingID); err != nil {
			p.failStage(ctx, doc.ID, job, types.StatusEmbeddingFailed, err, result)
			return
		}

		p.progress(ctx, job, 50+(i+1)*50/total)
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, types.StatusCompleted); err != nil {
		p.failStage(ctx, doc.ID, job, types.StatusEmbeddingFailed, err, result)
		return
	}

	p.finishJob(ctx, job)
	result.EmbeddingGeneration = true

	p.logger.Info("embeddings stored", "document_id", doc.ID, "chunks", total)
}

// Reprocess wipes the document's chunks and vectors, resets it to
// pending and runs the pipeline again. The guard is taken before the
// cleanup, so a reprocess racing an active run is rejected without
// touching that run's data.
func (p *Processor) Reprocess(ctx context.Context, documentID uuid.UUID) (*Result, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if !p.acquire(documentID) {
		return nil, fmt.Errorf("document %s is already being processed", documentID)
	}
	defer p.release(documentID)

	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("delete embeddings: %w", err)
	}
	if err := p.store.DeleteChunksByDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}
	if err := p.store.UpdateDocumentStatus(ctx, documentID, types.StatusPending); err != nil {
		return nil, err
	}

	p.logger.Info("reprocessing document", "document_id", documentID)
	return p.run(ctx, doc), nil
}

// Status reports document state, chunk counts and the job history,
// newest job first.
func (p *Processor) Status(ctx context.Context, documentID uuid.UUID) (*StatusReport, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	total, embedded, err := p.store.CountChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}

	jobs, err := p.store.JobsByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var pct float64
	if total > 0 {
		pct = float64(embedded) / float64(total) * 100
	}

	return &StatusReport{
		DocumentID:       doc.ID,
		Filename:         doc.OriginalFilename,
		ProcessingStatus: doc.ProcessingStatus,
		TotalPages:       doc.TotalPages,
		TotalCharacters:  doc.TotalCharacters,
		TotalChunks:      total,
		EmbeddedChunks:   embedded,
		ProgressPct:      pct,
		Jobs:             jobs,
	}, nil
}

// BulkProcess runs every pending or failed document of the user, one
// at a time in upload order. A failure in one document does not stop
// the rest.
func (p *Processor) BulkProcess(ctx context.Context, userID uuid.UUID) (*BulkResult, error) {
	docs, err := p.store.DocumentsForProcessing(ctx, userID)
	if err != nil {
		return nil, err
	}

	bulk := &BulkResult{TotalDocuments: len(docs), Details: []Result{}}

	for _, doc := range docs {
		result, err := p.Process(ctx, doc.ID)
		if err != nil {
			bulk.Failed++
			bulk.Details = append(bulk.Details, Result{
				DocumentID: doc.ID,
				Errors:     []string{err.Error()},
			})
			continue
		}

		if len(result.Errors) > 0 {
			bulk.Failed++
		} else {
			bulk.Processed++
		}
		bulk.Details = append(bulk.Details, *result)
	}

	p.logger.Info("bulk processing finished",
		"user_id", userID, "total", bulk.TotalDocuments,
		"processed", bulk.Processed, "failed", bulk.Failed)
	return bulk, nil
}

// ----- job helpers -----

func (p *Processor) startJob(ctx context.Context, documentID uuid.UUID, jobType string) *types.ProcessingJob {
	now := time.Now().UTC()
	job := &types.ProcessingJob{
		ID:         uuid.New(),
		DocumentID: documentID,
		JobType:    jobType,
		Status:     types.JobRunning,
		StartedAt:  &now,
		CreatedAt:  now,
	}
	if err := p.store.CreateJob(ctx, job); err != nil {
		p.logger.Error("create job", "document_id", documentID, "type", jobType, "error", err)
	}
	return job
}

func (p *Processor) progress(ctx context.Context, job *types.ProcessingJob, pct int) {
	job.ProgressPercentage = pct
	if err := p.store.UpdateJob(ctx, job); err != nil {
		p.logger.Error("update job progress", "job_id", job.ID, "error", err)
	}
}

func (p *Processor) finishJob(ctx context.Context, job *types.ProcessingJob) {
	now := time.Now().UTC()
	job.Status = types.JobCompleted
	job.ProgressPercentage = 100
	job.CompletedAt = &now
	if err := p.store.UpdateJob(ctx, job); err != nil {
		p.logger.Error("finish job", "job_id", job.ID, "error", err)
	}
}

// failStage marks the job failed, moves the document into the stage's
// failure status and records the error on the result.
func (p *Processor) failStage(ctx context.Context, documentID uuid.UUID, job *types.ProcessingJob, status string, stageErr error, result *Result) {
	now := time.Now().UTC()
	job.Status = types.JobFailed
	job.ErrorMessage = stageErr.Error()
	job.CompletedAt = &now
	if err := p.store.UpdateJob(ctx, job); err != nil {
		p.logger.Error("mark job failed", "job_id", job.ID, "error", err)
	}

	if err := p.store.UpdateDocumentStatus(ctx, documentID, status); err != nil {
		p.logger.Error("update document status", "document_id", documentID, "error", err)
	}

	result.Errors = append(result.Errors, stageErr.Error())
	p.logger.Error("pipeline stage failed",
		"document_id", documentID, "job_type", job.JobType, "error", stageErr)
}
