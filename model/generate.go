package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

// GenerationRequest is one non-streaming completion call. Zero-valued
// Model/MaxTokens/Temperature fall back to the generator defaults.
type GenerationRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type GenerationResult struct {
	Answer         string
	TokenUsage     types.TokenUsage
	ModelUsed      string
	ResponseTimeMs int
}

type GenerationProvider interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// OllamaGenerator produces answers through the Ollama generate API.
type OllamaGenerator struct {
	apiURL       string
	defaultModel string
	maxTokens    int
	temperature  float64
	client       *http.Client
}

type ollamaGenerateRequest struct {
	Model   string                `json:"model"`
	Prompt  string                `json:"prompt"`
	Stream  bool                  `json:"stream"`
	Options ollamaGenerateOptions `json:"options"`
}

type ollamaGenerateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func NewOllamaGenerator(apiURL, defaultModel string, maxTokens int, temperature float64) *OllamaGenerator {
	return &OllamaGenerator{
		apiURL:       apiURL,
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		temperature:  temperature,
		client:       &http.Client{Timeout: 5 * time.Minute},
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.temperature
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: false,
		Options: ollamaGenerateOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(raw))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &GenerationResult{
		Answer: strings.TrimSpace(genResp.Response),
		TokenUsage: types.TokenUsage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
			TotalTokens:      genResp.PromptEvalCount + genResp.EvalCount,
		},
		ModelUsed:      model,
		ResponseTimeMs: int(time.Since(start).Milliseconds()),
	}, nil
}
