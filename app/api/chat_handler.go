package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MingHacker/AIKnowledgeBase/rag"
	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

type ChatHandler struct {
	store   store.ChatStorer
	service *rag.Service
}

func NewChatHandler(s store.ChatStorer, service *rag.Service) *ChatHandler {
	return &ChatHandler{
		store:   s,
		service: service,
	}
}

func (h *ChatHandler) HandleAsk(c *fiber.Ctx) error {
	params := types.NewQuestionParams()
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	answer, err := h.service.AnswerQuestion(c.Context(), mustUserID(c), params)
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

func (h *ChatHandler) HandleCreateSession(c *fiber.Ctx) error {
	var params types.SessionParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	now := time.Now().UTC()
	session := &types.ChatSession{
		ID:             uuid.New(),
		UserID:         mustUserID(c),
		Title:          params.Title,
		IsActive:       true,
		DocumentFilter: params.DocumentFilter,
		SystemPrompt:   params.SystemPrompt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.CreateSession(c.Context(), session); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *ChatHandler) HandleListSessions(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active", false)
	sessions, err := h.store.ListSessions(c.Context(), mustUserID(c), activeOnly)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	return c.JSON(sessions)
}

// HandleUpdateSession applies a partial session update. Only fields
// present in the body change; an empty document filter clears the
// sticky filter.
func (h *ChatHandler) HandleUpdateSession(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}

	var params types.SessionParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	session, err := h.store.GetSession(c.Context(), mustUserID(c), id)
	if err != nil {
		return err
	}

	if params.Title != "" {
		session.Title = params.Title
	}
	if params.SystemPrompt != "" {
		session.SystemPrompt = params.SystemPrompt
	}
	session.DocumentFilter = params.DocumentFilter

	if err := h.store.UpdateSession(c.Context(), session); err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *ChatHandler) HandleCloseSession(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}

	session, err := h.store.GetSession(c.Context(), mustUserID(c), id)
	if err != nil {
		return err
	}

	session.IsActive = false
	if err := h.store.UpdateSession(c.Context(), session); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "closed"})
}

func (h *ChatHandler) HandleHistory(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return ErrInvalidID()
	}
	limit := c.QueryInt("limit", 50)

	history, err := h.service.ConversationHistory(c.Context(), mustUserID(c), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(history)
}

func (h *ChatHandler) HandleSuggestions(c *fiber.Ctx) error {
	suggestions, err := h.service.SuggestQuestions(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"suggestions": suggestions})
}
