package services

import (
	"context"
	"log/slog"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/MegaGrindStone/rag-web-ui/internal/session"
)

// LLMParameters are optional sampling parameters passed to direct LLM providers. Nil fields are left to
// the provider's default.
type LLMParameters struct {
	Temperature *float32 `yaml:"temperature"`
	TopP        *float32 `yaml:"topP"`
	MaxTokens   *int     `yaml:"maxTokens"`
}

// ScopeRouter dispatches questions by scope: questions scoped to a document always go to the Document
// answerer, which is the only one that knows about uploads, while global questions go to Global.
type ScopeRouter struct {
	Document session.Answerer
	Global   session.Answerer

	logger *slog.Logger
}

// NewScopeRouter creates a ScopeRouter. If global is nil, document answers both kinds of questions.
func NewScopeRouter(document, global session.Answerer, logger *slog.Logger) ScopeRouter {
	if global == nil {
		global = document
	}
	return ScopeRouter{
		Document: document,
		Global:   global,
		logger:   logger.With(slog.String("module", "router")),
	}
}

// Answer implements session.Answerer.
func (r ScopeRouter) Answer(ctx context.Context, req models.AskRequest) (string, error) {
	if req.DocID != "" {
		r.logger.Debug("Routing document question", slog.String("docID", req.DocID))
		return r.Document.Answer(ctx, req)
	}
	r.logger.Debug("Routing global question")
	return r.Global.Answer(ctx, req)
}

// chatTurn is a provider-neutral chat message used to build requests of direct LLM providers.
type chatTurn struct {
	role    string
	content string
}

// chatTurns flattens a question with its history into chat turns, prefixed by the system prompt if
// any. Pending placeholders and empty messages are skipped.
func chatTurns(systemPrompt string, req models.AskRequest) []chatTurn {
	turns := make([]chatTurn, 0, len(req.History)+2)
	if systemPrompt != "" {
		turns = append(turns, chatTurn{role: "system", content: systemPrompt})
	}
	for _, msg := range req.History {
		if msg.Pending || msg.Content == "" {
			continue
		}
		turns = append(turns, chatTurn{role: string(msg.Role), content: msg.Content})
	}
	return append(turns, chatTurn{role: string(models.RoleUser), content: req.Question})
}
