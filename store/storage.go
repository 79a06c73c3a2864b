package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

// DocumentStorer covers the document lifecycle outside the pipeline.
type DocumentStorer interface {
	SaveDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	GetUserDocument(ctx context.Context, userID, id uuid.UUID) (*types.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID) ([]types.Document, error)
	DeleteDocument(ctx context.Context, userID, id uuid.UUID) error
}

// PipelineStorer is everything the pipeline orchestrator mutates.
type PipelineStorer interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateDocumentExtraction(ctx context.Context, id uuid.UUID, pages, characters int, metadata map[string]string) error
	SaveChunks(ctx context.Context, chunks []types.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]types.DocumentChunk, error)
	SetChunkEmbeddingID(ctx context.Context, chunkID uuid.UUID, embeddingID string) error
	DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error
	CountChunks(ctx context.Context, documentID uuid.UUID) (total, embedded int, err error)
	CreateJob(ctx context.Context, job *types.ProcessingJob) error
	UpdateJob(ctx context.Context, job *types.ProcessingJob) error
	JobsByDocument(ctx context.Context, documentID uuid.UUID) ([]types.ProcessingJob, error)
	DocumentsForProcessing(ctx context.Context, userID uuid.UUID) ([]types.Document, error)
}

// ChatStorer is what the answering engine reads and writes.
type ChatStorer interface {
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*types.ChatSession, error)
	CreateSession(ctx context.Context, session *types.ChatSession) error
	UpdateSession(ctx context.Context, session *types.ChatSession) error
	ListSessions(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]types.ChatSession, error)
	MessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error)
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error)
	SaveConversationTurn(ctx context.Context, session *types.ChatSession, userMsg, assistantMsg *types.ChatMessage) error
	GetChunk(ctx context.Context, chunkID uuid.UUID) (*types.DocumentChunk, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID) ([]types.Document, error)
}

// SettingsStorer manages the per-user settings row.
type SettingsStorer interface {
	GetOrCreateSettings(ctx context.Context, userID uuid.UUID) (*types.UserSettings, error)
	UpdateSettings(ctx context.Context, settings *types.UserSettings) error
	ResetSettings(ctx context.Context, userID uuid.UUID) (*types.UserSettings, error)
}

type DBStorer interface {
	DocumentStorer
	PipelineStorer
	ChatStorer
	SettingsStorer
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: slog.Default(),
	}, nil
}

// Pool exposes the underlying connection pool so the vector index can
// share it.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_size_bytes BIGINT NOT NULL DEFAULT 0,
		mime_type TEXT,
		upload_status TEXT NOT NULL DEFAULT 'pending',
		processing_status TEXT NOT NULL DEFAULT 'pending',
		total_pages INT NOT NULL DEFAULT 0,
		total_characters INT NOT NULL DEFAULT 0,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		processed_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents(user_id);
	CREATE INDEX IF NOT EXISTS idx_documents_processing_status ON documents(processing_status);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INT NOT NULL,
		content TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'text',
		page_number INT NOT NULL DEFAULT 1,
		character_count INT NOT NULL DEFAULT 0,
		word_count INT NOT NULL DEFAULT 0,
		embedding_id TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks(document_id);

	CREATE TABLE IF NOT EXISTS processing_jobs (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		progress_percentage INT NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at TIMESTAMP WITH TIME ZONE,
		completed_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_processing_jobs_document_id ON processing_jobs(document_id);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		title TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		document_filter JSONB,
		system_prompt TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		last_message_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_id ON chat_sessions(user_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		message_type TEXT NOT NULL,
		content TEXT NOT NULL,
		source_chunks JSONB,
		token_usage JSONB,
		model_used TEXT,
		response_time_ms INT NOT NULL DEFAULT 0,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages(session_id);

	CREATE TABLE IF NOT EXISTS user_settings (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL UNIQUE,
		preferred_model TEXT NOT NULL,
		max_tokens INT NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		chunk_size INT NOT NULL,
		chunk_overlap INT NOT NULL,
		default_document_filter JSONB,
		ui_preferences JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("postgres connection pool closed")
	}
	return nil
}

// ----- documents -----

const documentColumns = `id, user_id, filename, original_filename, file_path, file_size_bytes,
	mime_type, upload_status, processing_status, total_pages, total_characters,
	metadata, created_at, updated_at, processed_at`

func (s *PostgresStore) SaveDocument(ctx context.Context, doc *types.Document) error {
	meta, err := toJSON(doc.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			upload_status = EXCLUDED.upload_status,
			processing_status = EXCLUDED.processing_status,
			total_pages = EXCLUDED.total_pages,
			total_characters = EXCLUDED.total_characters,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			processed_at = EXCLUDED.processed_at`
	_, err = s.pool.Exec(ctx, query,
		doc.ID, doc.UserID, doc.Filename, doc.OriginalFilename, doc.FilePath,
		doc.FileSizeBytes, nullString(doc.MimeType), doc.UploadStatus, doc.ProcessingStatus,
		doc.TotalPages, doc.TotalCharacters, meta, doc.CreatedAt, doc.UpdatedAt,
		doc.ProcessedAt,
	)
	return err
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewNotFound("document", id.String())
	}
	return doc, err
}

func (s *PostgresStore) GetUserDocument(ctx context.Context, userID, id uuid.UUID) (*types.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewNotFound("document", id.String())
	}
	return doc, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID uuid.UUID) ([]types.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.NewNotFound("document", id.String())
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET processing_status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC())
	return err
}

func (s *PostgresStore) UpdateDocumentExtraction(ctx context.Context, id uuid.UUID, pages, characters int, metadata map[string]string) error {
	meta, err := toJSON(metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`UPDATE documents
		 SET total_pages = $2, total_characters = $3, metadata = $4,
		     processed_at = $5, updated_at = $5
		 WHERE id = $1`,
		id, pages, characters, meta, now)
	return err
}

func (s *PostgresStore) DocumentsForProcessing(ctx context.Context, userID uuid.UUID) ([]types.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE user_id = $1 AND processing_status = ANY($2)
		 ORDER BY created_at`,
		userID, []string{types.StatusPending, types.StatusFailed})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ----- chunks -----

const chunkColumns = `id, document_id, chunk_index, content, content_type, page_number,
	character_count, word_count, embedding_id, metadata, created_at`

func (s *PostgresStore) SaveChunks(ctx context.Context, chunks []types.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		meta, err := toJSON(c.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO document_chunks (`+chunkColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.ContentType, c.PageNumber,
			c.CharacterCount, c.WordCount, nullString(c.EmbeddingID), meta, c.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]types.DocumentChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks
		 WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.DocumentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) GetChunk(ctx context.Context, chunkID uuid.UUID) (*types.DocumentChunk, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE id = $1`, chunkID)
	chunk, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewNotFound("chunk", chunkID.String())
	}
	return chunk, err
}

func (s *PostgresStore) SetChunkEmbeddingID(ctx context.Context, chunkID uuid.UUID, embeddingID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE document_chunks SET embedding_id = $2 WHERE id = $1`, chunkID, embeddingID)
	return err
}

func (s *PostgresStore) DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (s *PostgresStore) CountChunks(ctx context.Context, documentID uuid.UUID) (int, int, error) {
	var total, embedded int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(embedding_id) FROM document_chunks WHERE document_id = $1`,
		documentID).Scan(&total, &embedded)
	return total, embedded, err
}

// ----- processing jobs -----

func (s *PostgresStore) CreateJob(ctx context.Context, job *types.ProcessingJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_jobs
		 (id, document_id, job_type, status, progress_percentage, error_message, started_at, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.DocumentID, job.JobType, job.Status, job.ProgressPercentage,
		nullString(job.ErrorMessage), job.StartedAt, job.CompletedAt, job.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *types.ProcessingJob) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = $2, progress_percentage = $3, error_message = $4,
		     started_at = $5, completed_at = $6
		 WHERE id = $1`,
		job.ID, job.Status, job.ProgressPercentage, nullString(job.ErrorMessage),
		job.StartedAt, job.CompletedAt)
	return err
}

func (s *PostgresStore) JobsByDocument(ctx context.Context, documentID uuid.UUID) ([]types.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, job_type, status, progress_percentage, error_message,
		        started_at, completed_at, created_at
		 FROM processing_jobs WHERE document_id = $1 ORDER BY created_at DESC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []types.ProcessingJob
	for rows.Next() {
		var job types.ProcessingJob
		var errMsg *string
		if err := rows.Scan(&job.ID, &job.DocumentID, &job.JobType, &job.Status,
			&job.ProgressPercentage, &errMsg, &job.StartedAt, &job.CompletedAt,
			&job.CreatedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			job.ErrorMessage = *errMsg
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ----- chat sessions and messages -----

const sessionColumns = `id, user_id, title, is_active, document_filter, system_prompt,
	created_at, updated_at, last_message_at`

func (s *PostgresStore) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*types.ChatSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1 AND user_id = $2`,
		sessionID, userID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewNotFound("chat session", sessionID.String())
	}
	return session, err
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *types.ChatSession) error {
	filter, err := toJSON(uuidStrings(session.DocumentFilter))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.UserID, nullString(session.Title), session.IsActive,
		filter, nullString(session.SystemPrompt), session.CreatedAt,
		session.UpdatedAt, session.LastMessageAt)
	return err
}

func (s *PostgresStore) UpdateSession(ctx context.Context, session *types.ChatSession) error {
	filter, err := toJSON(uuidStrings(session.DocumentFilter))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE chat_sessions
		 SET title = $2, is_active = $3, document_filter = $4, system_prompt = $5,
		     updated_at = $6, last_message_at = $7
		 WHERE id = $1`,
		session.ID, nullString(session.Title), session.IsActive, filter,
		nullString(session.SystemPrompt), time.Now().UTC(), session.LastMessageAt)
	return err
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]types.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY COALESCE(last_message_at, created_at) DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []types.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

const messageColumns = `id, session_id, message_type, content, source_chunks, token_usage,
	model_used, response_time_ms, metadata, created_at`

func (s *PostgresStore) MessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		 WHERE session_id = $1 ORDER BY created_at ASC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// RecentMessages returns the newest messages in chronological order.
func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM chat_messages
			WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SaveConversationTurn persists the question, the answer and the
// session's last-message timestamp in one transaction. Any failure
// rolls back the whole turn.
func (s *PostgresStore) SaveConversationTurn(ctx context.Context, session *types.ChatSession, userMsg, assistantMsg *types.ChatMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, msg := range []*types.ChatMessage{userMsg, assistantMsg} {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_sessions SET last_message_at = $2, updated_at = $2 WHERE id = $1`,
		session.ID, session.LastMessageAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertMessage(ctx context.Context, tx pgx.Tx, msg *types.ChatMessage) error {
	sources, err := toJSON(uuidStrings(msg.SourceChunks))
	if err != nil {
		return err
	}
	usage, err := toJSON(msg.TokenUsage)
	if err != nil {
		return err
	}
	meta, err := toJSON(msg.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO chat_messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.SessionID, msg.MessageType, msg.Content, sources, usage,
		nullString(msg.ModelUsed), msg.ResponseTimeMs, meta, msg.CreatedAt)
	return err
}

// ----- user settings -----

const settingsColumns = `id, user_id, preferred_model, max_tokens, temperature, chunk_size,
	chunk_overlap, default_document_filter, ui_preferences, created_at, updated_at`

func (s *PostgresStore) GetOrCreateSettings(ctx context.Context, userID uuid.UUID) (*types.UserSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM user_settings WHERE user_id = $1`, userID)
	settings, err := scanSettings(row)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	defaults := types.DefaultUserSettings(userID)
	defaults.CreatedAt = time.Now().UTC()
	defaults.UpdatedAt = defaults.CreatedAt
	if err := s.insertSettings(ctx, &defaults); err != nil {
		return nil, err
	}
	return &defaults, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, settings *types.UserSettings) error {
	filter, err := toJSON(uuidStrings(settings.DefaultDocumentFilter))
	if err != nil {
		return err
	}
	prefs, err := toJSON(settings.UIPreferences)
	if err != nil {
		return err
	}
	settings.UpdatedAt = time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`UPDATE user_settings
		 SET preferred_model = $2, max_tokens = $3, temperature = $4, chunk_size = $5,
		     chunk_overlap = $6, default_document_filter = $7, ui_preferences = $8,
		     updated_at = $9
		 WHERE user_id = $1`,
		settings.UserID, settings.PreferredModel, settings.MaxTokens, settings.Temperature,
		settings.ChunkSize, settings.ChunkOverlap, filter, prefs, settings.UpdatedAt)
	return err
}

// ResetSettings drops the row and recreates it with defaults.
func (s *PostgresStore) ResetSettings(ctx context.Context, userID uuid.UUID) (*types.UserSettings, error) {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM user_settings WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	return s.GetOrCreateSettings(ctx, userID)
}

func (s *PostgresStore) insertSettings(ctx context.Context, settings *types.UserSettings) error {
	filter, err := toJSON(uuidStrings(settings.DefaultDocumentFilter))
	if err != nil {
		return err
	}
	prefs, err := toJSON(settings.UIPreferences)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_settings (`+settingsColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		settings.ID, settings.UserID, settings.PreferredModel, settings.MaxTokens,
		settings.Temperature, settings.ChunkSize, settings.ChunkOverlap, filter,
		prefs, settings.CreatedAt, settings.UpdatedAt)
	return err
}

// ----- scanning helpers -----

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*types.Document, error) {
	var doc types.Document
	var mimeType, meta *string
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.OriginalFilename,
		&doc.FilePath, &doc.FileSizeBytes, &mimeType, &doc.UploadStatus,
		&doc.ProcessingStatus, &doc.TotalPages, &doc.TotalCharacters, &meta,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if mimeType != nil {
		doc.MimeType = *mimeType
	}
	if err := fromJSON(meta, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanChunk(row scanner) (*types.DocumentChunk, error) {
	var chunk types.DocumentChunk
	var embeddingID, meta *string
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
		&chunk.ContentType, &chunk.PageNumber, &chunk.CharacterCount, &chunk.WordCount,
		&embeddingID, &meta, &chunk.CreatedAt)
	if err != nil {
		return nil, err
	}
	if embeddingID != nil {
		chunk.EmbeddingID = *embeddingID
	}
	if err := fromJSON(meta, &chunk.Metadata); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func scanSession(row scanner) (*types.ChatSession, error) {
	var session types.ChatSession
	var title, filter, systemPrompt *string
	err := row.Scan(&session.ID, &session.UserID, &title, &session.IsActive,
		&filter, &systemPrompt, &session.CreatedAt, &session.UpdatedAt,
		&session.LastMessageAt)
	if err != nil {
		return nil, err
	}
	if title != nil {
		session.Title = *title
	}
	if systemPrompt != nil {
		session.SystemPrompt = *systemPrompt
	}
	var ids []string
	if err := fromJSON(filter, &ids); err != nil {
		return nil, err
	}
	session.DocumentFilter, err = parseUUIDs(ids)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func collectMessages(rows pgx.Rows) ([]types.ChatMessage, error) {
	var messages []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		var sources, usage, meta, modelUsed *string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.MessageType, &msg.Content,
			&sources, &usage, &modelUsed, &msg.ResponseTimeMs, &meta,
			&msg.CreatedAt); err != nil {
			return nil, err
		}
		if modelUsed != nil {
			msg.ModelUsed = *modelUsed
		}
		var ids []string
		if err := fromJSON(sources, &ids); err != nil {
			return nil, err
		}
		chunkIDs, err := parseUUIDs(ids)
		if err != nil {
			return nil, err
		}
		msg.SourceChunks = chunkIDs
		if err := fromJSON(usage, &msg.TokenUsage); err != nil {
			return nil, err
		}
		if err := fromJSON(meta, &msg.Metadata); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanSettings(row scanner) (*types.UserSettings, error) {
	var settings types.UserSettings
	var filter, prefs *string
	err := row.Scan(&settings.ID, &settings.UserID, &settings.PreferredModel,
		&settings.MaxTokens, &settings.Temperature, &settings.ChunkSize,
		&settings.ChunkOverlap, &filter, &prefs, &settings.CreatedAt,
		&settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := fromJSON(filter, &ids); err != nil {
		return nil, err
	}
	settings.DefaultDocumentFilter, err = parseUUIDs(ids)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(prefs, &settings.UIPreferences); err != nil {
		return nil, err
	}
	return &settings, nil
}

// ----- encoding helpers -----

func toJSON(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	s := string(raw)
	if s == "null" {
		return nil, nil
	}
	return &s, nil
}

func fromJSON(raw *string, dest any) error {
	if raw == nil || *raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(*raw), dest)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(ids []string) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
