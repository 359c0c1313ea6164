package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/go-playground/validator/v10"
)

// RAG is a client of the retrieval-augmented question answering backend. It uploads documents to be
// indexed and asks questions, either scoped to one uploaded document or against the whole corpus.
type RAG struct {
	baseURL string

	client   *http.Client
	validate *validator.Validate

	logger *slog.Logger
}

type ragChatRequest struct {
	Question string                  `json:"question"`
	DocID    *string                 `json:"doc_id"`
	History  []models.HistoryMessage `json:"history"`
}

type ragChatResponse struct {
	Answer  string      `json:"answer" validate:"required"`
	Sources []ragSource `json:"sources"`
}

type ragSource struct {
	Content string `json:"content"`
}

type ragUploadResponse struct {
	DocID   string `json:"doc_id" validate:"required"`
	Message string `json:"message"`
}

const (
	ragUploadPath = "/upload-pdf"
	ragChatPath   = "/chat"

	ragUploadField = "file"

	maxErrorBodySize = 4 << 10
)

// NewRAG creates a new RAG client for the backend at baseURL, e.g. http://127.0.0.1:8000. The client
// doesn't set a timeout on its own; callers bound requests through the context.
func NewRAG(baseURL string, logger *slog.Logger) RAG {
	return RAG{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{},
		validate: validator.New(),
		logger:   logger.With(slog.String("module", "rag")),
	}
}

// UploadPDF streams the file as the "file" field of a multipart form to the backend and returns the
// document ID the backend indexed it under. The file content is not inspected; format and size
// validation is left to the backend.
func (r RAG) UploadPDF(ctx context.Context, filename string, file io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(ragUploadField, filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("error creating form file: %w", err))
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(fmt.Errorf("error copying file: %w", err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+ragUploadPath, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res ragUploadResponse
	if err := r.do(req, &res); err != nil {
		return "", err
	}

	r.logger.Debug("Document uploaded",
		slog.String("filename", filename),
		slog.String("docID", res.DocID))

	return res.DocID, nil
}

// Answer asks the backend a question. An empty DocID is sent as null, which the backend interprets
// as the global corpus.
func (r RAG) Answer(ctx context.Context, ask models.AskRequest) (string, error) {
	body := ragChatRequest{
		Question: ask.Question,
		History:  models.History(ask.History),
	}
	if ask.DocID != "" {
		body.DocID = &ask.DocID
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	r.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+ragChatPath, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res ragChatResponse
	if err := r.do(req, &res); err != nil {
		return "", err
	}

	r.logger.Debug("Answer received",
		slog.Int("answerLength", len(res.Answer)),
		slog.Int("sources", len(res.Sources)))

	return res.Answer, nil
}

// do sends req and decodes a successful response into out, validating its shape. Failures are
// classified as models.ErrTransport, *models.StatusError or models.ErrMalformedResponse.
func (r RAG) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: error sending request: %w", models.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &models.StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: error decoding response: %w", models.ErrMalformedResponse, err)
	}
	if err := r.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %w", models.ErrMalformedResponse, err)
	}

	return nil
}
