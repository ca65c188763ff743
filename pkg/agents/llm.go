package agents

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/devloop/internal/config"
)

// NewModel builds the shared chat model from LLM configuration. Any
// OpenAI-compatible endpoint works via BaseURL.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey.Value() != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return model, nil
}
