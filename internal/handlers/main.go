package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	ragwebui "github.com/MegaGrindStone/rag-web-ui"
	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/MegaGrindStone/rag-web-ui/internal/session"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// SessionRegistry hands out the session controller bound to a browser.
type SessionRegistry interface {
	Get(id string) (*session.Controller, bool)
	GetOrCreate(id string) (*session.Controller, bool)
}

// DocumentStore provides read access to the registry of uploaded documents.
type DocumentStore interface {
	Documents(ctx context.Context) ([]models.Document, error)
	Document(ctx context.Context, id string) (models.Document, bool, error)
}

// Main handles the web surface of the chat client: it renders the page, forwards user actions to the
// session controllers, and pushes their asynchronous state changes to the browser through server-sent
// events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	sessions  SessionRegistry
	documents DocumentStore

	logger *slog.Logger
}

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	scopeSSEType    = sse.Type("scope")
	statusSSEType   = sse.Type("status")
)

const (
	sessionCookieName = "ragwebui_session"

	errLoggerKey = "error"
)

// NewMain creates a new Main instance with the provided session registry and document store. It
// initializes the SSE server, which subscribes every client to the topic of the session named by its
// cookie, and parses the required HTML templates from the embedded filesystem.
func NewMain(sessions SessionRegistry, documents DocumentStore, logger *slog.Logger) (Main, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"isUser": func(role string) bool { return role == string(models.RoleUser) },
	}).ParseFS(
		ragwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	l := logger.With(slog.String("module", "main"))

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				cookie, err := s.Req.Cookie(sessionCookieName)
				if err != nil || cookie.Value == "" {
					l.Warn("SSE subscription without session cookie")
					return sse.Subscription{}, false
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, sessionTopic(cookie.Value)},
				}, true
			},
		},
		templates: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle("github")),
			),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		sessions:  sessions,
		documents: documents,
		logger:    l,
	}, nil
}

func sessionTopic(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// Notify implements session.Notifier. It renders the changed piece of the page and publishes it on the
// session's topic. Publishing is best effort; a page without a live connection picks up the state on
// its next load.
func (m Main) Notify(sessionID string, event session.Event) {
	var (
		msg  sse.Message
		data string
		err  error
	)
	switch event.Type {
	case session.EventMessage:
		msg.Type = messagesSSEType
		data, err = m.renderString(messageTemplate(event.Message), m.messageView(event.Message))
	case session.EventScope:
		msg.Type = scopeSSEType
		data, err = m.renderString("scope_badge", m.scopeView(context.Background(), event.Scope))
	case session.EventUploadStatus:
		msg.Type = statusSSEType
		data, err = m.renderString("upload_status", uploadView{
			Status:    string(event.Status),
			Uploading: event.Status == models.UploadStatusUploading,
		})
	default:
		m.logger.Error("Unknown session event", slog.String("type", string(event.Type)))
		return
	}
	if err != nil {
		m.logger.Error("Failed to render event",
			slog.String("type", string(event.Type)),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg.AppendData(data)
	if err := m.sseSrv.Publish(&msg, sessionTopic(sessionID)); err != nil {
		m.logger.Error("Failed to publish event",
			slog.String("sessionID", sessionID),
			slog.String("type", string(event.Type)),
			slog.String(errLoggerKey, err.Error()))
	}
}

// HandleSSE serves the event stream of the session bound to the request's cookie.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// controller returns the session controller bound to the request, creating a session and setting its
// cookie if there is none.
func (m Main) controller(w http.ResponseWriter, r *http.Request) *session.Controller {
	var id string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = cookie.Value
	}

	ctrl, created := m.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    ctrl.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		m.logger.Debug("New session bound", slog.String("sessionID", ctrl.ID()))
	}
	return ctrl
}

func (m Main) renderString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}
