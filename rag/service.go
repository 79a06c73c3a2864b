package rag

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MingHacker/AIKnowledgeBase/model"
	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

const historyLimit = 6

// Source is one retrieved chunk backing an answer. Content carries the
// full excerpt into the prompt; responses expose only the preview.
type Source struct {
	DocumentID     uuid.UUID `json:"document_id"`
	DocumentName   string    `json:"document_name"`
	ChunkID        uuid.UUID `json:"chunk_id"`
	PageNumber     int       `json:"page_number"`
	Similarity     float64   `json:"similarity"`
	Content        string    `json:"-"`
	ContentPreview string    `json:"content_preview"`
}

// Answer is the full response to one question.
type Answer struct {
	Answer              string            `json:"answer"`
	Sources             []Source          `json:"sources"`
	SessionID           uuid.UUID         `json:"session_id"`
	MessageID           uuid.UUID         `json:"message_id"`
	TokenUsage          *types.TokenUsage `json:"token_usage,omitempty"`
	ResponseTimeMs      int               `json:"response_time_ms"`
	RelevantChunksFound int               `json:"relevant_chunks_found"`
}

// HistoryEntry is one message in a session transcript, with assistant
// messages carrying their resolved source references.
type HistoryEntry struct {
	MessageID      uuid.UUID         `json:"message_id"`
	MessageType    string            `json:"message_type"`
	Content        string            `json:"content"`
	Sources        []Source          `json:"sources,omitempty"`
	TokenUsage     *types.TokenUsage `json:"token_usage,omitempty"`
	ModelUsed      string            `json:"model_used,omitempty"`
	ResponseTimeMs int               `json:"response_time_ms"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Service answers questions against a user's embedded documents.
type Service struct {
	store     store.ChatStorer
	settings  store.SettingsStorer
	embedder  model.EmbeddingProvider
	generator model.GenerationProvider
	index     store.VectorIndex
	threshold float64
	topK      int
	logger    *slog.Logger
}

func NewService(
	st store.ChatStorer,
	settings store.SettingsStorer,
	embedder model.EmbeddingProvider,
	generator model.GenerationProvider,
	index store.VectorIndex,
	threshold float64,
	topK int,
) *Service {
	if threshold <= 0 {
		threshold = 0.6
	}
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		store:     st,
		settings:  settings,
		embedder:  embedder,
		generator: generator,
		index:     index,
		threshold: threshold,
		topK:      topK,
		logger:    slog.Default(),
	}
}

// AnswerQuestion retrieves relevant chunks, generates an answer and
// persists the conversation turn. When nothing clears the similarity
// threshold the canned no-context answer is stored and returned without
// calling the model.
func (s *Service) AnswerQuestion(ctx context.Context, userID uuid.UUID, params types.QuestionParams) (*Answer, error) {
	session, err := s.resolveSession(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	// The session's sticky filter wins over the per-request one.
	filter := params.DocumentFilter
	if len(session.DocumentFilter) > 0 {
		filter = session.DocumentFilter
	}

	sources, err := s.retrieve(ctx, userID, params.Question, filter)
	if err != nil {
		return nil, err
	}

	var history []types.ChatMessage
	if params.UseHistory {
		history, err = s.store.RecentMessages(ctx, session.ID, historyLimit)
		if err != nil {
			return nil, err
		}
	}

	answerText := NoContextAnswer
	var usage *types.TokenUsage
	modelUsed := ""
	responseTime := 0

	if len(sources) > 0 {
		prompt := BuildPrompt(PromptInput{
			SystemPrompt: session.SystemPrompt,
			Question:     params.Question,
			Sources:      sources,
			History:      history,
		})

		if count, err := model.CountTokens(prompt); err == nil {
			s.logger.Debug("prompt assembled",
				"session_id", session.ID, "sources", len(sources), "prompt_tokens", count)
		}

		req := model.GenerationRequest{Prompt: prompt}
		if userSettings, err := s.settings.GetOrCreateSettings(ctx, userID); err == nil {
			req.Model = userSettings.PreferredModel
			req.MaxTokens = userSettings.MaxTokens
			req.Temperature = userSettings.Temperature
		} else {
			s.logger.Warn("load user settings", "user_id", userID, "error", err)
		}

		generated, err := s.generator.Generate(ctx, req)
		if err != nil {
			return nil, err
		}

		answerText = generated.Answer
		usage = &generated.TokenUsage
		modelUsed = generated.ModelUsed
		responseTime = generated.ResponseTimeMs
	}

	now := time.Now().UTC()
	userMsg := &types.ChatMessage{
		ID:          uuid.New(),
		SessionID:   session.ID,
		MessageType: types.MessageUser,
		Content:     params.Question,
		CreatedAt:   now,
	}

	sourceIDs := make([]uuid.UUID, 0, len(sources))
	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ChunkID)
	}
	assistantMsg := &types.ChatMessage{
		ID:             uuid.New(),
		SessionID:      session.ID,
		MessageType:    types.MessageAssistant,
		Content:        answerText,
		SourceChunks:   sourceIDs,
		TokenUsage:     usage,
		ModelUsed:      modelUsed,
		ResponseTimeMs: responseTime,
		CreatedAt:      now.Add(time.Millisecond),
	}

	session.LastMessageAt = &assistantMsg.CreatedAt
	if err := s.store.SaveConversationTurn(ctx, session, userMsg, assistantMsg); err != nil {
		return nil, err
	}

	return &Answer{
		Answer:              answerText,
		Sources:             sources,
		SessionID:           session.ID,
		MessageID:           assistantMsg.ID,
		TokenUsage:          usage,
		ResponseTimeMs:      responseTime,
		RelevantChunksFound: len(sources),
	}, nil
}

// resolveSession loads the referenced session, verifying ownership, or
// creates a fresh one titled after the question.
func (s *Service) resolveSession(ctx context.Context, userID uuid.UUID, params types.QuestionParams) (*types.ChatSession, error) {
	if params.SessionID != nil {
		return s.store.GetSession(ctx, userID, *params.SessionID)
	}

	now := time.Now().UTC()
	session := &types.ChatSession{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          SessionTitle(params.Question),
		IsActive:       true,
		DocumentFilter: params.DocumentFilter,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// retrieve embeds the question and queries the index with twice the
// result budget, then applies the similarity threshold and keeps the
// topK best.
func (s *Service) retrieve(ctx context.Context, userID uuid.UUID, question string, filter []uuid.UUID) ([]Source, error) {
	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	results, err := s.index.Query(ctx, embedding, s.topK*2, store.VectorFilter{
		DocumentIDs: filter,
		UserID:      userID,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.threshold {
			continue
		}
		sources = append(sources, Source{
			DocumentID:     r.DocumentID,
			DocumentName:   r.DocumentFilename,
			ChunkID:        r.ChunkID,
			PageNumber:     r.PageNumber,
			Similarity:     r.Similarity,
			Content:        r.Content,
			ContentPreview: ContentPreview(r.Content),
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Similarity > sources[j].Similarity
	})
	if len(sources) > s.topK {
		sources = sources[:s.topK]
	}

	s.logger.Info("retrieval finished",
		"user_id", userID, "candidates", len(results), "relevant", len(sources))
	return sources, nil
}

// ConversationHistory returns a session transcript in chronological
// order with assistant source references resolved to documents.
func (s *Service) ConversationHistory(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]HistoryEntry, error) {
	if _, err := s.store.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	messages, err := s.store.MessagesBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		entry := HistoryEntry{
			MessageID:      msg.ID,
			MessageType:    msg.MessageType,
			Content:        msg.Content,
			TokenUsage:     msg.TokenUsage,
			ModelUsed:      msg.ModelUsed,
			ResponseTimeMs: msg.ResponseTimeMs,
			CreatedAt:      msg.CreatedAt,
		}
		if msg.MessageType == types.MessageAssistant {
			entry.Sources = s.resolveSources(ctx, msg.SourceChunks)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// resolveSources hydrates stored chunk references. Chunks deleted since
// the message was written are skipped rather than failing the listing.
func (s *Service) resolveSources(ctx context.Context, chunkIDs []uuid.UUID) []Source {
	var sources []Source
	for _, chunkID := range chunkIDs {
		chunk, err := s.store.GetChunk(ctx, chunkID)
		if err != nil {
			s.logger.Debug("source chunk unavailable", "chunk_id", chunkID, "error", err)
			continue
		}
		doc, err := s.store.GetDocument(ctx, chunk.DocumentID)
		if err != nil {
			s.logger.Debug("source document unavailable", "document_id", chunk.DocumentID, "error", err)
			continue
		}
		sources = append(sources, Source{
			DocumentID:     doc.ID,
			DocumentName:   doc.OriginalFilename,
			ChunkID:        chunk.ID,
			PageNumber:     chunk.PageNumber,
			Content:        chunk.Content,
			ContentPreview: ContentPreview(chunk.Content),
		})
	}
	return sources
}

// SuggestQuestions offers starter questions. Users with no documents
// get an empty list since nothing could be answered anyway.
func (s *Service) SuggestQuestions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	return []string{
		"What are the main topics covered in my documents?",
		"Can you summarize the key points of my most recent upload?",
		"What conclusions do my documents reach?",
		"Are there any dates or deadlines mentioned in my documents?",
		"What definitions or terminology do my documents introduce?",
	}, nil
}
