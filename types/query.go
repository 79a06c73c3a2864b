package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// QuestionParams is the body of an ask request.
type QuestionParams struct {
	Question       string      `json:"question" validate:"required"`
	SessionID      *uuid.UUID  `json:"session_id,omitempty"`
	DocumentFilter []uuid.UUID `json:"document_filter,omitempty"`
	UseHistory     bool        `json:"use_history"`
}

// NewQuestionParams returns the request defaults. History is on unless
// the caller turns it off, so decode request bodies into this rather
// than a zero struct.
func NewQuestionParams() QuestionParams {
	return QuestionParams{UseHistory: true}
}

// SessionParams creates or updates a chat session.
type SessionParams struct {
	Title          string      `json:"title,omitempty" validate:"omitempty,max=255"`
	SystemPrompt   string      `json:"system_prompt,omitempty"`
	DocumentFilter []uuid.UUID `json:"document_filter,omitempty"`
}

// SettingsParams carries a partial user-settings update. Pointer fields
// distinguish "leave unchanged" from an explicit zero.
type SettingsParams struct {
	PreferredModel        *string     `json:"preferred_model,omitempty" validate:"omitempty,max=100"`
	MaxTokens             *int        `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature           *float64    `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	ChunkSize             *int        `json:"chunk_size,omitempty" validate:"omitempty,gt=0"`
	ChunkOverlap          *int        `json:"chunk_overlap,omitempty" validate:"omitempty,gte=0"`
	DefaultDocumentFilter []uuid.UUID `json:"default_document_filter,omitempty"`
	UIPreferences         map[string]any `json:"ui_preferences,omitempty"`
}

func (params *QuestionParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SessionParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SettingsParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}
