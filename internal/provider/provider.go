// Package provider builds the chat model used for task planning.
package provider

import (
	"context"
	"fmt"

	"github.com/MEKXH/warden/internal/config"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Planning only needs deterministic short completions.
var (
	plannerTemperature = float32(0.0)
	plannerMaxTokens   = 2048
)

// NewChatModel creates a ChatModel based on configuration. The first
// provider with an API key wins, in a fixed order.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ChatModel, error) {
	p := cfg.Providers
	modelName := cfg.Agent.Model

	switch {
	case p.OpenRouter.APIKey != "":
		return newCompatModel(ctx, p.OpenRouter, modelName, "https://openrouter.ai/api/v1")
	case p.OpenAI.APIKey != "":
		return newCompatModel(ctx, p.OpenAI, modelName, "")
	case p.DeepSeek.APIKey != "":
		return newCompatModel(ctx, p.DeepSeek, modelName, "https://api.deepseek.com/v1")
	default:
		return nil, fmt.Errorf("no provider configured: set api_key for at least one provider")
	}
}

func newCompatModel(ctx context.Context, p config.ProviderConfig, modelName, defaultBaseURL string) (model.ChatModel, error) {
	cfg := &openai.ChatModelConfig{
		Model:       modelName,
		APIKey:      p.APIKey,
		Temperature: &plannerTemperature,
		MaxTokens:   &plannerMaxTokens,
	}
	switch {
	case p.BaseURL != "":
		cfg.BaseURL = p.BaseURL
	case defaultBaseURL != "":
		cfg.BaseURL = defaultBaseURL
	}
	return openai.NewChatModel(ctx, cfg)
}
