package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
)

// Answerer produces the answer to a question. An empty DocID in the request targets the global corpus.
type Answerer interface {
	Answer(ctx context.Context, req models.AskRequest) (string, error)
}

// Uploader sends a document to the answer backend and returns the identifier it was indexed under.
type Uploader interface {
	UploadPDF(ctx context.Context, filename string, r io.Reader) (string, error)
}

// DocumentRecorder keeps track of successfully uploaded documents.
type DocumentRecorder interface {
	AddDocument(ctx context.Context, doc models.Document) error
}

// Notifier receives the state changes of a session that happen outside of the request that caused
// them, so they can be pushed to the page.
type Notifier interface {
	Notify(sessionID string, event Event)
}

// EventType discriminates the payload of an Event.
type EventType string

const (
	// EventMessage carries a resolved placeholder or a system notice in Message.
	EventMessage EventType = "message"
	// EventScope carries the new scope in Scope, empty for the global corpus.
	EventScope EventType = "scope"
	// EventUploadStatus carries the new upload phase in Status.
	EventUploadStatus EventType = "status"
)

// Event is a state change of a session.
type Event struct {
	Type    EventType
	Message models.Message
	Scope   string
	Status  models.UploadStatus
}

// HistoryPolicy selects which part of the message log is sent as history with a question.
type HistoryPolicy string

const (
	// HistoryAll sends the whole log, including messages exchanged under a previous scope.
	HistoryAll HistoryPolicy = "all"
	// HistoryScope sends only the messages appended since the last scope change.
	HistoryScope HistoryPolicy = "scope"
)

// Options tunes a Controller.
type Options struct {
	HistoryPolicy HistoryPolicy
	// RequestTimeout bounds every exchange with the answer backend. Zero disables the bound.
	RequestTimeout time.Duration
}

// Texts rendered in the conversation.
const (
	UploadNotice          = "Document received. Ask me a question about it!"
	ConnectivityErrorText = "Error: unable to reach the assistant."
	CancelledText         = "Request cancelled."
)

var (
	// ErrEmptyQuestion is returned by Ask when the question is empty or whitespace only.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrRequestPending is returned by Ask while another question is outstanding.
	ErrRequestPending = errors.New("a question is already pending")
	// ErrUploadInProgress is returned by Upload while another upload is in flight.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrNoFile is returned by Upload when no file was provided.
	ErrNoFile = errors.New("no file provided")

	errCancelled = errors.New("exchange cancelled")
)

// Controller drives a Session: it admits questions, dispatches them to the Answerer, resolves the
// placeholders, and switches the scope on upload. At most one question is outstanding at a time.
type Controller struct {
	id      string
	session *Session

	answerer  Answerer
	uploader  Uploader
	documents DocumentRecorder
	notifier  Notifier

	opts Options

	mu       sync.Mutex
	inflight *inflight

	logger *slog.Logger
}

type inflight struct {
	exchange *Exchange
	cancel   context.CancelCauseFunc
}

// Exchange is an admitted question. The user message and the placeholder are already part of the
// session when Ask returns; the placeholder is resolved in the background.
type Exchange struct {
	User        models.Message
	Placeholder models.Message

	done   chan struct{}
	result models.Message
}

// NewController creates a Controller for a fresh Session identified by id. documents and notifier may
// be nil.
func NewController(
	id string,
	answerer Answerer,
	uploader Uploader,
	documents DocumentRecorder,
	notifier Notifier,
	opts Options,
	logger *slog.Logger,
) *Controller {
	if opts.HistoryPolicy == "" {
		opts.HistoryPolicy = HistoryAll
	}
	return &Controller{
		id:        id,
		session:   New(logger),
		answerer:  answerer,
		uploader:  uploader,
		documents: documents,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With(slog.String("module", "controller"), slog.String("sessionID", id)),
	}
}

// ID returns the identifier of the controlled session.
func (c *Controller) ID() string {
	return c.id
}

// Session returns the controlled session, for reading.
func (c *Controller) Session() *Session {
	return c.session
}

// Ask admits question and dispatches it. Empty questions and questions asked while another one is
// pending are rejected without touching the session. The exchange outlives ctx cancellation, so it
// can be started from a short-lived HTTP request; use Cancel to abort it.
//
// The history sent with the question is the log as it was before the question was appended. Any
// failure of the remote call resolves the placeholder with ConnectivityErrorText.
func (c *Controller) Ask(ctx context.Context, question string) (*Exchange, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	// Admission and registration happen under c.mu, so Cancel never observes a pending question
	// without its exchange.
	c.mu.Lock()
	a, err := c.session.admit(question, c.opts.HistoryPolicy)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	exCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	ex := &Exchange{
		User:        a.user,
		Placeholder: a.placeholder,
		done:        make(chan struct{}),
	}
	c.inflight = &inflight{exchange: ex, cancel: cancel}
	c.mu.Unlock()

	req := models.AskRequest{
		Question: question,
		DocID:    a.scope,
		History:  a.history,
	}
	go c.dispatch(exCtx, cancel, ex, req)

	return ex, nil
}

// Cancel aborts the outstanding exchange, if any. The placeholder is resolved with CancelledText.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight == nil {
		return false
	}
	c.inflight.cancel(errCancelled)
	return true
}

func (c *Controller) dispatch(ctx context.Context, cancel context.CancelCauseFunc, ex *Exchange, req models.AskRequest) {
	defer close(ex.done)
	defer cancel(nil)
	defer c.session.release(ex.Placeholder.ID)
	defer func() {
		c.mu.Lock()
		if c.inflight != nil && c.inflight.exchange == ex {
			c.inflight = nil
		}
		c.mu.Unlock()
	}()

	if c.opts.RequestTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancelTimeout()
	}

	start := time.Now()
	text, err := c.answerer.Answer(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: empty answer", models.ErrMalformedResponse)
	}
	if err != nil {
		c.logger.Error("Failed to get answer",
			slog.String("docID", req.DocID),
			slog.Duration("elapsed", time.Since(start)),
			slog.String(errLoggerKey, err.Error()))
		text = ConnectivityErrorText
		if errors.Is(context.Cause(ctx), errCancelled) {
			text = CancelledText
		}
	}

	msg, ok := c.session.Resolve(ex.Placeholder.ID, text)
	if !ok {
		return
	}
	ex.result = msg
	c.notify(Event{Type: EventMessage, Message: msg})
}

// Upload sends a document to the backend. On success the session switches to the document's scope and
// a notice is appended; on failure only the upload status changes. Uploads are serialized: a second
// upload while one is in flight fails with ErrUploadInProgress.
func (c *Controller) Upload(ctx context.Context, filename string, size int64, r io.Reader) (models.Document, error) {
	if filename == "" || r == nil {
		return models.Document{}, ErrNoFile
	}
	if err := c.session.beginUpload(); err != nil {
		return models.Document{}, err
	}
	c.notify(Event{Type: EventUploadStatus, Status: models.UploadStatusUploading})

	docID, err := c.uploader.UploadPDF(ctx, filename, r)
	if err == nil && docID == "" {
		err = fmt.Errorf("%w: empty document id", models.ErrMalformedResponse)
	}
	if err != nil {
		status := models.UploadStatusUploadError
		if errors.Is(err, models.ErrTransport) {
			status = models.UploadStatusConnectionError
		}
		c.session.finishUpload(status, "", "")
		c.notify(Event{Type: EventUploadStatus, Status: status})
		c.logger.Error("Failed to upload document",
			slog.String("filename", filename),
			slog.String(errLoggerKey, err.Error()))
		return models.Document{}, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	notice, _ := c.session.finishUpload(models.UploadStatusReady, docID, UploadNotice)
	doc := models.Document{
		ID:         docID,
		Filename:   filename,
		Size:       size,
		UploadedAt: time.Now(),
	}
	if c.documents != nil {
		if err := c.documents.AddDocument(context.WithoutCancel(ctx), doc); err != nil {
			c.logger.Warn("Failed to record document",
				slog.String("docID", docID),
				slog.String(errLoggerKey, err.Error()))
		}
	}

	c.notify(Event{Type: EventUploadStatus, Status: models.UploadStatusReady})
	c.notify(Event{Type: EventScope, Scope: docID})
	c.notify(Event{Type: EventMessage, Message: notice})

	c.logger.Info("Document uploaded", slog.String("docID", docID), slog.String("filename", filename))
	return doc, nil
}

// ClearScope switches the session back to the global corpus.
func (c *Controller) ClearScope() {
	c.session.ClearScope()
	c.notify(Event{Type: EventScope})
}

func (c *Controller) notify(event Event) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(c.id, event)
}

// Done is closed once the placeholder has been resolved.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Result returns the resolved placeholder. It is only meaningful after Done is closed.
func (e *Exchange) Result() models.Message {
	<-e.done
	return e.result
}

// Wait blocks until the placeholder is resolved or ctx is done.
func (e *Exchange) Wait(ctx context.Context) (models.Message, error) {
	select {
	case <-e.done:
		return e.result, nil
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

const errLoggerKey = "error"
