package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MingHacker/AIKnowledgeBase/store"
	"github.com/MingHacker/AIKnowledgeBase/types"
)

type SettingsHandler struct {
	store store.SettingsStorer
}

func NewSettingsHandler(s store.SettingsStorer) *SettingsHandler {
	return &SettingsHandler{store: s}
}

func (h *SettingsHandler) HandleGet(c *fiber.Ctx) error {
	settings, err := h.store.GetOrCreateSettings(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(settings)
}

// HandleUpdate merges the provided fields into the stored settings.
// Absent fields keep their current values.
func (h *SettingsHandler) HandleUpdate(c *fiber.Ctx) error {
	var params types.SettingsParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	settings, err := h.store.GetOrCreateSettings(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}

	if params.PreferredModel != nil {
		settings.PreferredModel = *params.PreferredModel
	}
	if params.MaxTokens != nil {
		settings.MaxTokens = *params.MaxTokens
	}
	if params.Temperature != nil {
		settings.Temperature = *params.Temperature
	}
	if params.ChunkSize != nil {
		settings.ChunkSize = *params.ChunkSize
	}
	if params.ChunkOverlap != nil {
		settings.ChunkOverlap = *params.ChunkOverlap
	}
	if params.DefaultDocumentFilter != nil {
		settings.DefaultDocumentFilter = params.DefaultDocumentFilter
	}
	if params.UIPreferences != nil {
		settings.UIPreferences = params.UIPreferences
	}

	if err := h.store.UpdateSettings(c.Context(), settings); err != nil {
		return err
	}
	return c.JSON(settings)
}

func (h *SettingsHandler) HandleReset(c *fiber.Ctx) error {
	settings, err := h.store.ResetSettings(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(settings)
}
