package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MingHacker/AIKnowledgeBase/model"
	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

// ----- fakes -----

type fakeChatStore struct {
	sessions map[uuid.UUID]*types.ChatSession
	messages []types.ChatMessage
	chunks   map[uuid.UUID]*types.DocumentChunk
	docs     map[uuid.UUID]*types.Document
	settings map[uuid.UUID]*types.UserSettings
	turns    int
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		sessions: make(map[uuid.UUID]*types.ChatSession),
		chunks:   make(map[uuid.UUID]*types.DocumentChunk),
		docs:     make(map[uuid.UUID]*types.Document),
		settings: make(map[uuid.UUID]*types.UserSettings),
	}
}

func (s *fakeChatStore) GetSession(_ context.Context, userID, sessionID uuid.UUID) (*types.ChatSession, error) {
	session, ok := s.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, types.NewNotFound("chat session", sessionID.String())
	}
	copied := *session
	return &copied, nil
}

func (s *fakeChatStore) CreateSession(_ context.Context, session *types.ChatSession) error {
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *fakeChatStore) UpdateSession(_ context.Context, session *types.ChatSession) error {
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *fakeChatStore) ListSessions(_ context.Context, userID uuid.UUID, activeOnly bool) ([]types.ChatSession, error) {
	var out []types.ChatSession
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		if activeOnly && !session.IsActive {
			continue
		}
		out = append(out, *session)
	}
	return out, nil
}

func (s *fakeChatStore) MessagesBySession(_ context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	var out []types.ChatMessage
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeChatStore) RecentMessages(_ context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	var all []types.ChatMessage
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			all = append(all, msg)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *fakeChatStore) SaveConversationTurn(_ context.Context, session *types.ChatSession, userMsg, assistantMsg *types.ChatMessage) error {
	s.messages = append(s.messages, *userMsg, *assistantMsg)
	s.sessions[session.ID].LastMessageAt = session.LastMessageAt
	s.turns++
	return nil
}

func (s *fakeChatStore) GetChunk(_ context.Context, chunkID uuid.UUID) (*types.DocumentChunk, error) {
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return nil, types.NewNotFound("chunk", chunkID.String())
	}
	return chunk, nil
}

func (s *fakeChatStore) GetDocument(_ context.Context, id uuid.UUID) (*types.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, types.NewNotFound("document", id.String())
	}
	return doc, nil
}

func (s *fakeChatStore) ListDocuments(_ context.Context, userID uuid.UUID) ([]types.Document, error) {
	var out []types.Document
	for _, doc := range s.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *fakeChatStore) GetOrCreateSettings(_ context.Context, userID uuid.UUID) (*types.UserSettings, error) {
	if settings, ok := s.settings[userID]; ok {
		return settings, nil
	}
	defaults := types.DefaultUserSettings(userID)
	s.settings[userID] = &defaults
	return &defaults, nil
}

func (s *fakeChatStore) UpdateSettings(_ context.Context, settings *types.UserSettings) error {
	s.settings[settings.UserID] = settings
	return nil
}

func (s *fakeChatStore) ResetSettings(_ context.Context, userID uuid.UUID) (*types.UserSettings, error) {
	delete(s.settings, userID)
	return s.GetOrCreateSettings(context.Background(), userID)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeGenerator struct {
	calls   int
	lastReq model.GenerationRequest
	answer  string
}

func (g *fakeGenerator) Generate(_ context.Context, req model.GenerationRequest) (*model.GenerationResult, error) {
	g.calls++
	g.lastReq = req
	return &model.GenerationResult{
		Answer:         g.answer,
		TokenUsage:     types.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		ModelUsed:      req.Model,
		ResponseTimeMs: 42,
	}, nil
}

type fakeIndex struct {
	results    []store.SearchResult
	lastLimit  int
	lastFilter store.VectorFilter
}

func (f *fakeIndex) Upsert(_ context.Context, entry store.VectorEntry) (string, error) {
	return entry.ChunkID.String(), nil
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, limit int, filter store.VectorFilter) ([]store.SearchResult, error) {
	f.lastLimit = limit
	f.lastFilter = filter
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeIndex) Delete(context.Context, uuid.UUID) error           { return nil }
func (f *fakeIndex) DeleteByDocument(context.Context, uuid.UUID) error { return nil }

func newTestService(st *fakeChatStore, gen *fakeGenerator, idx *fakeIndex) *Service {
	return NewService(st, st, fakeEmbedder{}, gen, idx, 0.6, 5)
}

func result(similarity float64, name string) store.SearchResult {
	return store.SearchResult{
		ChunkID:          uuid.New(),
		DocumentID:       uuid.New(),
		Content:          "content from " + name,
		PageNumber:       2,
		DocumentFilename: name,
		Similarity:       similarity,
	}
}

// ----- tests -----

func TestAnswerQuestionNoRelevantContext(t *testing.T) {
	st := newFakeChatStore()
	gen := &fakeGenerator{answer: "should never be used"}
	idx := &fakeIndex{results: []store.SearchResult{
		result(0.42, "a.pdf"),
		result(0.55, "b.pdf"),
	}}

	svc := newTestService(st, gen, idx)
	userID := uuid.New()

	answer, err := svc.AnswerQuestion(context.Background(), userID, types.QuestionParams{
		Question: "Where is the treasure?",
	})
	require.NoError(t, err)

	assert.Equal(t, NoContextAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, answer.RelevantChunksFound)
	assert.Nil(t, answer.TokenUsage)
	assert.Zero(t, answer.ResponseTimeMs)
	assert.Zero(t, gen.calls, "no model call without context")

	// Both sides of the turn are persisted anyway.
	require.Len(t, st.messages, 2)
	assert.Equal(t, types.MessageUser, st.messages[0].MessageType)
	assert.Equal(t, "Where is the treasure?", st.messages[0].Content)
	assert.Equal(t, types.MessageAssistant, st.messages[1].MessageType)
	assert.Equal(t, NoContextAnswer, st.messages[1].Content)
	assert.Equal(t, 1, st.turns)

	session := st.sessions[answer.SessionID]
	require.NotNil(t, session)
	assert.Equal(t, "Where is the treasure?", session.Title)
	assert.NotNil(t, session.LastMessageAt)
}

func TestAnswerQuestionWithSources(t *testing.T) {
	st := newFakeChatStore()
	gen := &fakeGenerator{answer: "the grounded answer"}

	var results []store.SearchResult
	for i := 0; i < 8; i++ {
		results = append(results, result(0.95-float64(i)*0.03, "doc.pdf"))
	}
	idx := &fakeIndex{results: results}

	svc := newTestService(st, gen, idx)
	userID := uuid.New()

	answer, err := svc.AnswerQuestion(context.Background(), userID, types.QuestionParams{
		Question: "What does the document say?",
	})
	require.NoError(t, err)

	assert.Equal(t, "the grounded answer", answer.Answer)
	require.Len(t, answer.Sources, 5, "capped at topK")
	assert.Equal(t, 5, answer.RelevantChunksFound)
	for i := 1; i < len(answer.Sources); i++ {
		assert.GreaterOrEqual(t, answer.Sources[i-1].Similarity, answer.Sources[i].Similarity)
	}

	require.NotNil(t, answer.TokenUsage)
	assert.Equal(t, 120, answer.TokenUsage.TotalTokens)
	assert.Equal(t, 42, answer.ResponseTimeMs)

	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.lastReq.Prompt, "[Source 1: doc.pdf, Page 2, Similarity: 0.950]")
	assert.Contains(t, gen.lastReq.Prompt, "QUESTION: What does the document say?")

	// Over-fetch: the index is asked for twice the final budget.
	assert.Equal(t, 10, idx.lastLimit)
	assert.Equal(t, userID, idx.lastFilter.UserID)

	// Assistant message records its sources.
	require.Len(t, st.messages, 2)
	assert.Len(t, st.messages[1].SourceChunks, 5)
	assert.Equal(t, "llama3.1", st.messages[1].ModelUsed)
}

func TestAnswerQuestionThresholdBoundary(t *testing.T) {
	st := newFakeChatStore()
	gen := &fakeGenerator{answer: "ok"}
	idx := &fakeIndex{results: []store.SearchResult{
		result(0.6, "exact.pdf"),
		result(0.5999, "below.pdf"),
	}}

	svc := newTestService(st, gen, idx)
	answer, err := svc.AnswerQuestion(context.Background(), uuid.New(), types.QuestionParams{
		Question: "q",
	})
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "exact.pdf", answer.Sources[0].DocumentName)
}

func TestAnswerQuestionSettingsOverride(t *testing.T) {
	st := newFakeChatStore()
	userID := uuid.New()
	st.settings[userID] = &types.UserSettings{
		UserID:         userID,
		PreferredModel: "mistral",
		MaxTokens:      256,
		Temperature:    0.1,
	}

	gen := &fakeGenerator{answer: "ok"}
	idx := &fakeIndex{results: []store.SearchResult{result(0.9, "d.pdf")}}

	svc := newTestService(st, gen, idx)
	_, err := svc.AnswerQuestion(context.Background(), userID, types.QuestionParams{Question: "q"})
	require.NoError(t, err)

	assert.Equal(t, "mistral", gen.lastReq.Model)
	assert.Equal(t, 256, gen.lastReq.MaxTokens)
	assert.InDelta(t, 0.1, gen.lastReq.Temperature, 1e-9)
}

func TestAnswerQuestionStickySessionFilter(t *testing.T) {
	st := newFakeChatStore()
	userID := uuid.New()
	sessionFilter := []uuid.UUID{uuid.New()}
	session := &types.ChatSession{
		ID:             uuid.New(),
		UserID:         userID,
		IsActive:       true,
		DocumentFilter: sessionFilter,
	}
	st.sessions[session.ID] = session

	gen := &fakeGenerator{answer: "ok"}
	idx := &fakeIndex{}

	svc := newTestService(st, gen, idx)
	_, err := svc.AnswerQuestion(context.Background(), userID, types.QuestionParams{
		Question:       "q",
		SessionID:      &session.ID,
		DocumentFilter: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	assert.Equal(t, sessionFilter, idx.lastFilter.DocumentIDs, "session filter wins over the request filter")
}

func TestAnswerQuestionRequestFilterWhenSessionHasNone(t *testing.T) {
	st := newFakeChatStore()
	userID := uuid.New()
	session := &types.ChatSession{ID: uuid.New(), UserID: userID, IsActive: true}
	st.sessions[session.ID] = session

	idx := &fakeIndex{}
	svc := newTestService(st, &fakeGenerator{answer: "ok"}, idx)

	requestFilter := []uuid.UUID{uuid.New()}
	_, err := svc.AnswerQuestion(context.Background(), userID, types.QuestionParams{
		Question:       "q",
		SessionID:      &session.ID,
		DocumentFilter: requestFilter,
	})
	require.NoError(t, err)

	assert.Equal(t, requestFilter, idx.lastFilter.DocumentIDs)
}

func TestAnswerQuestionForeignSession(t *testing.T) {
	st := newFakeChatStore()
	owner := uuid.New()
	session := &types.ChatSession{ID: uuid.New(), UserID: owner, IsActive: true}
	st.sessions[session.ID] = session

	svc := newTestService(st, &fakeGenerator{}, &fakeIndex{})
	_, err := svc.AnswerQuestion(context.Background(), uuid.New(), types.QuestionParams{
		Question:  "q",
		SessionID: &session.ID,
	})

	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAnswerQuestionLongTitleTruncated(t *testing.T) {
	st := newFakeChatStore()
	svc := newTestService(st, &fakeGenerator{answer: "ok"}, &fakeIndex{})

	question := strings.Repeat("why ", 50)
	answer, err := svc.AnswerQuestion(context.Background(), uuid.New(), types.QuestionParams{
		Question: question,
	})
	require.NoError(t, err)

	title := st.sessions[answer.SessionID].Title
	assert.Len(t, title, 103)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestConversationHistory(t *testing.T) {
	st := newFakeChatStore()
	userID := uuid.New()
	session := &types.ChatSession{ID: uuid.New(), UserID: userID, IsActive: true}
	st.sessions[session.ID] = session

	doc := &types.Document{ID: uuid.New(), UserID: userID, OriginalFilename: "report.pdf"}
	st.docs[doc.ID] = doc
	chunk := &types.DocumentChunk{ID: uuid.New(), DocumentID: doc.ID, Content: "chunk text", PageNumber: 7}
	st.chunks[chunk.ID] = chunk
	missing := uuid.New()

	now := time.Now().UTC()
	st.messages = []types.ChatMessage{
		{ID: uuid.New(), SessionID: session.ID, MessageType: types.MessageUser, Content: "q1", CreatedAt: now},
		{
			ID: uuid.New(), SessionID: session.ID, MessageType: types.MessageAssistant,
			Content: "a1", SourceChunks: []uuid.UUID{chunk.ID, missing}, CreatedAt: now.Add(time.Second),
		},
	}

	svc := newTestService(st, &fakeGenerator{}, &fakeIndex{})
	history, err := svc.ConversationHistory(context.Background(), userID, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, types.MessageUser, history[0].MessageType)
	assert.Empty(t, history[0].Sources)

	require.Len(t, history[1].Sources, 1, "missing chunks are skipped")
	assert.Equal(t, "report.pdf", history[1].Sources[0].DocumentName)
	assert.Equal(t, 7, history[1].Sources[0].PageNumber)
}

func TestConversationHistoryForeignSession(t *testing.T) {
	st := newFakeChatStore()
	session := &types.ChatSession{ID: uuid.New(), UserID: uuid.New(), IsActive: true}
	st.sessions[session.ID] = session

	svc := newTestService(st, &fakeGenerator{}, &fakeIndex{})
	_, err := svc.ConversationHistory(context.Background(), uuid.New(), session.ID, 10)

	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSuggestQuestions(t *testing.T) {
	st := newFakeChatStore()
	userID := uuid.New()
	svc := newTestService(st, &fakeGenerator{}, &fakeIndex{})

	suggestions, err := svc.SuggestQuestions(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, suggestions, "no documents, nothing to suggest")

	doc := &types.Document{ID: uuid.New(), UserID: userID}
	st.docs[doc.ID] = doc

	suggestions, err = svc.SuggestQuestions(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, suggestions, 5)
}
