package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama answers global questions directly with a model served by an Ollama server.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	params LLMParameters

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model, systemPrompt string, params LLMParameters, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       api.NewClient(u, &http.Client{}),
		logger:       logger.With(slog.String("module", "ollama")),
	}, nil
}

// Answer implements session.Answerer. Streaming is disabled, so the callback receives the whole answer
// at once.
func (o Ollama) Answer(ctx context.Context, req models.AskRequest) (string, error) {
	turns := chatTurns(o.systemPrompt, req)
	msgs := make([]api.Message, len(turns))
	for i, t := range turns {
		msgs[i] = api.Message{
			Role:    t.role,
			Content: t.content,
		}
	}

	f := false
	chatReq := api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &f,
		Options:  o.options(),
	}

	var answer string
	if err := o.client.Chat(ctx, &chatReq, func(res api.ChatResponse) error {
		answer += res.Message.Content
		return nil
	}); err != nil {
		return "", fmt.Errorf("%w: error sending request: %w", models.ErrTransport, err)
	}

	o.logger.Debug("Answer received", slog.String("host", o.host), slog.Int("answerLength", len(answer)))

	return answer, nil
}

func (o Ollama) options() map[string]any {
	opts := map[string]any{}
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		opts["num_predict"] = *o.params.MaxTokens
	}
	return opts
}
