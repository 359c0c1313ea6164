package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/MegaGrindStone/rag-web-ui/internal/session"
)

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time
	Notice    bool

	StreamingState string
}

const (
	streamingStateLoading = "loading"
	streamingStateEnded   = "ended"
)

// HandleChats submits the "message" form field as a question of the caller's session.
//
// The question and its placeholder are appended to the session before the answer is requested, so the
// handler responds right away with both rendered messages; the resolved answer is pushed later through
// the session's SSE topic. An empty message is rejected with 400, and a message sent while another
// question is pending with 409, without changing the session.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controller(w, r)

	ex, err := ctrl.Ask(r.Context(), r.FormValue("message"))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyQuestion):
			http.Error(w, "Message is required", http.StatusBadRequest)
		case errors.Is(err, session.ErrRequestPending):
			http.Error(w, "A question is already pending", http.StatusConflict)
		default:
			m.logger.Error("Failed to ask question",
				slog.String("sessionID", ctrl.ID()),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	var buf bytes.Buffer
	for _, msg := range []models.Message{ex.User, ex.Placeholder} {
		if err := m.templates.ExecuteTemplate(&buf, messageTemplate(msg), m.messageView(msg)); err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = buf.WriteTo(w)
}

// HandleCancel aborts the pending question of the caller's session. The placeholder is resolved and
// pushed through SSE as with any other answer. It responds with 409 if nothing is pending.
func (m Main) HandleCancel(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		http.Error(w, "No question is pending", http.StatusConflict)
		return
	}
	ctrl, ok := m.sessions.Get(cookie.Value)
	if !ok || !ctrl.Cancel() {
		http.Error(w, "No question is pending", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func messageTemplate(msg models.Message) string {
	if msg.Role == models.RoleUser {
		return "user_message"
	}
	return "ai_message"
}

// messageView prepares msg for rendering. Assistant contents are rendered from Markdown; user contents
// are escaped as plain text.
func (m Main) messageView(msg models.Message) message {
	view := message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Timestamp:      msg.Timestamp,
		Notice:         msg.Notice,
		StreamingState: streamingStateEnded,
	}

	switch {
	case msg.Pending:
		view.StreamingState = streamingStateLoading
	case msg.Role == models.RoleUser:
		view.Content = template.HTML(template.HTMLEscapeString(msg.Content))
	default:
		var buf bytes.Buffer
		if err := m.markdown.Convert([]byte(msg.Content), &buf); err != nil {
			m.logger.Warn("Failed to render markdown, falling back to plain text",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			view.Content = template.HTML(template.HTMLEscapeString(msg.Content))
			break
		}
		view.Content = template.HTML(buf.String())
	}
	return view
}
