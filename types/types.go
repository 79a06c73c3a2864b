package types

import (
	"time"

	"github.com/google/uuid"
)

// Processing statuses a document moves through. The pipeline advances
// strictly pending -> extracting -> chunking -> embedding -> completed;
// the failed variants absorb a run that died in the matching stage and
// stay put until an explicit reprocess.
const (
	StatusPending           = "pending"
	StatusExtracting        = "extracting"
	StatusChunking          = "chunking"
	StatusChunkingCompleted = "chunking_completed"
	StatusEmbedding         = "embedding"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusChunkingFailed    = "chunking_failed"
	StatusEmbeddingFailed   = "embedding_failed"
)

// Pipeline job types, one per stage.
const (
	JobExtractText      = "extract_text"
	JobGenerateChunks   = "generate_chunks"
	JobCreateEmbeddings = "create_embeddings"
)

// Job statuses. Completed and failed are terminal.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Chunking methods accepted by the chunker.
const (
	MethodSlidingWindow = "sliding_window"
	MethodParagraph     = "paragraph"
)

// Chat message roles.
const (
	MessageUser      = "user"
	MessageAssistant = "assistant"
	MessageSystem    = "system"
)

type Document struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Filename         string            `json:"filename"`
	OriginalFilename string            `json:"original_filename"`
	FilePath         string            `json:"file_path"`
	FileSizeBytes    int64             `json:"file_size_bytes"`
	MimeType         string            `json:"mime_type"`
	UploadStatus     string            `json:"upload_status"`
	ProcessingStatus string            `json:"processing_status"`
	TotalPages       int               `json:"total_pages"`
	TotalCharacters  int               `json:"total_characters"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
}

// DocumentChunk is one retrievable unit of a document's text.
// (DocumentID, ChunkIndex) is unique; ordering by index reconstructs
// the document.
type DocumentChunk struct {
	ID             uuid.UUID      `json:"id"`
	DocumentID     uuid.UUID      `json:"document_id"`
	ChunkIndex     int            `json:"chunk_index"`
	Content        string         `json:"content"`
	ContentType    string         `json:"content_type"`
	PageNumber     int            `json:"page_number"`
	CharacterCount int            `json:"character_count"`
	WordCount      int            `json:"word_count"`
	EmbeddingID    string         `json:"embedding_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ProcessingJob is an append-only audit record of one stage attempt.
type ProcessingJob struct {
	ID                 uuid.UUID  `json:"id"`
	DocumentID         uuid.UUID  `json:"document_id"`
	JobType            string     `json:"job_type"`
	Status             string     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type ChatSession struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	Title          string      `json:"title,omitempty"`
	IsActive       bool        `json:"is_active"`
	DocumentFilter []uuid.UUID `json:"document_filter,omitempty"`
	SystemPrompt   string      `json:"system_prompt,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastMessageAt  *time.Time  `json:"last_message_at,omitempty"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatMessage struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      uuid.UUID      `json:"session_id"`
	MessageType    string         `json:"message_type"`
	Content        string         `json:"content"`
	SourceChunks   []uuid.UUID    `json:"source_chunks,omitempty"`
	TokenUsage     *TokenUsage    `json:"token_usage,omitempty"`
	ModelUsed      string         `json:"model_used,omitempty"`
	ResponseTimeMs int            `json:"response_time_ms"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type UserSettings struct {
	ID                    uuid.UUID      `json:"id"`
	UserID                uuid.UUID      `json:"user_id"`
	PreferredModel        string         `json:"preferred_model"`
	MaxTokens             int            `json:"max_tokens"`
	Temperature           float64        `json:"temperature"`
	ChunkSize             int            `json:"chunk_size"`
	ChunkOverlap          int            `json:"chunk_overlap"`
	DefaultDocumentFilter []uuid.UUID    `json:"default_document_filter,omitempty"`
	UIPreferences         map[string]any `json:"ui_preferences,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// DefaultUserSettings returns the row created lazily on first access.
func DefaultUserSettings(userID uuid.UUID) UserSettings {
	return UserSettings{
		ID:             uuid.New(),
		UserID:         userID,
		PreferredModel: "llama3.1",
		MaxTokens:      1000,
		Temperature:    0.7,
		ChunkSize:      1000,
		ChunkOverlap:   200,
	}
}
