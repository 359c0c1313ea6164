package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI answers global questions directly with an OpenAI compatible chat completion model, instead of
// the RAG backend's corpus.
type OpenAI struct {
	model        string
	systemPrompt string

	params LLMParameters

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance. An empty baseURL targets the official API.
func NewOpenAI(apiKey, baseURL, model, systemPrompt string, params LLMParameters, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       goopenai.NewClientWithConfig(cfg),
		logger:       logger.With(slog.String("module", "openai")),
	}
}

// Answer implements session.Answerer with a single, non-streaming chat completion.
func (o OpenAI) Answer(ctx context.Context, req models.AskRequest) (string, error) {
	turns := chatTurns(o.systemPrompt, req)
	msgs := make([]goopenai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		msgs[i] = goopenai.ChatCompletionMessage{
			Role:    t.role,
			Content: t.content,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, o.chatRequest(msgs))
	if err != nil {
		return "", fmt.Errorf("%w: error sending request: %w", models.ErrTransport, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices found", models.ErrMalformedResponse)
	}

	o.logger.Debug("Completion received",
		slog.String("finishReason", string(resp.Choices[0].FinishReason)),
		slog.Int("totalTokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}

	return req
}
