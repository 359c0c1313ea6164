package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// OpenRouter answers global questions with a model routed by OpenRouter. The completion is streamed
// and accumulated into a single answer.
type OpenRouter struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string

	params LLMParameters

	client *http.Client

	logger *slog.Logger
}

type openRouterChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature *float32            `json:"temperature,omitempty"`
	TopP        *float32            `json:"top_p,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
}

type openRouterStreamingChoice struct {
	Delta openRouterMessage `json:"delta"`
}

const openRouterAPIEndpoint = "https://openrouter.ai/api/v1"

// NewOpenRouter creates a new OpenRouter instance. An empty baseURL targets the public OpenRouter API.
func NewOpenRouter(apiKey, baseURL, model, systemPrompt string, params LLMParameters, logger *slog.Logger) OpenRouter {
	if baseURL == "" {
		baseURL = openRouterAPIEndpoint
	}
	return OpenRouter{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       &http.Client{},
		logger:       logger.With(slog.String("module", "openrouter")),
	}
}

// Answer implements session.Answerer. The streamed deltas are concatenated until the "[DONE]" event or
// the end of the stream.
func (o OpenRouter) Answer(ctx context.Context, req models.AskRequest) (string, error) {
	resp, err := o.doRequest(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var answer strings.Builder
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			return "", fmt.Errorf("%w: error reading response: %w", models.ErrTransport, err)
		}
		if ev.Data == "[DONE]" {
			break
		}

		var res openRouterStreamingResponse
		if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
			return "", fmt.Errorf("%w: error unmarshaling response: %w", models.ErrMalformedResponse, err)
		}
		if len(res.Choices) == 0 {
			continue
		}
		answer.WriteString(res.Choices[0].Delta.Content)
	}

	o.logger.Debug("Answer received", slog.Int("answerLength", answer.Len()))

	return answer.String(), nil
}

func (o OpenRouter) doRequest(ctx context.Context, ask models.AskRequest) (*http.Response, error) {
	turns := chatTurns(o.systemPrompt, ask)
	msgs := make([]openRouterMessage, len(turns))
	for i, t := range turns {
		msgs[i] = openRouterMessage{Role: t.role, Content: t.content}
	}

	jsonBody, err := json.Marshal(openRouterChatRequest{
		Model:       o.model,
		Messages:    msgs,
		Stream:      true,
		Temperature: o.params.Temperature,
		TopP:        o.params.TopP,
		MaxTokens:   o.params.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	o.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/MegaGrindStone/rag-web-ui/")
	req.Header.Set("X-Title", "RAG Web UI")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: error sending request: %w", models.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &models.StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}
