package types

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionParamsValidate(t *testing.T) {
	params := &QuestionParams{Question: "what is this about?"}
	assert.Nil(t, Validate(params))
}

func TestQuestionParamsMissingQuestion(t *testing.T) {
	params := &QuestionParams{}
	errs := Validate(params)
	require.Len(t, errs, 1)
	assert.Equal(t, "failed on 'required' tag", errs["Question"])
}

func TestQuestionParamsHistoryDefault(t *testing.T) {
	params := NewQuestionParams()
	require.NoError(t, json.Unmarshal([]byte(`{"question":"hi"}`), &params))
	assert.True(t, params.UseHistory, "history stays on when the field is absent")

	params = NewQuestionParams()
	require.NoError(t, json.Unmarshal([]byte(`{"question":"hi","use_history":false}`), &params))
	assert.False(t, params.UseHistory)
}

func TestSettingsParamsRanges(t *testing.T) {
	bad := 3.5
	params := &SettingsParams{Temperature: &bad}
	errs := Validate(params)
	require.Contains(t, errs, "Temperature")

	zero := 0
	params = &SettingsParams{ChunkSize: &zero}
	errs = Validate(params)
	require.Contains(t, errs, "ChunkSize")

	ok := 0.9
	size := 500
	params = &SettingsParams{Temperature: &ok, ChunkSize: &size}
	assert.Nil(t, Validate(params))
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(map[string]string{"Field": "failed on 'required' tag"})
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	assert.Equal(t, "validation failed", err.Error())
}

func TestDefaultUserSettings(t *testing.T) {
	userID := uuid.New()
	settings := DefaultUserSettings(userID)

	assert.Equal(t, userID, settings.UserID)
	assert.NotEqual(t, uuid.Nil, settings.ID)
	assert.Equal(t, "llama3.1", settings.PreferredModel)
	assert.Equal(t, 1000, settings.MaxTokens)
	assert.InDelta(t, 0.7, settings.Temperature, 1e-9)
	assert.Equal(t, 1000, settings.ChunkSize)
	assert.Equal(t, 200, settings.ChunkOverlap)
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("document", "abc")
	assert.Equal(t, "document abc not found", err.Error())
}

func TestChunkingErrorUnknownMethod(t *testing.T) {
	err := &ChunkingError{Method: "magic"}
	assert.Equal(t, "unknown chunking method: magic", err.Error())
}
