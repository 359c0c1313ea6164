package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
)

type homePageData struct {
	Messages  []message
	Pending   bool
	Scope     scopeView
	Upload    uploadView
	Documents []models.Document
}

type scopeView struct {
	DocID    string
	Filename string
}

type uploadView struct {
	Status    string
	Uploading bool
}

// HandleHome renders the chat page of the caller's session, binding a new session if the browser has
// none.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controller(w, r)
	sess := ctrl.Session()

	docs, err := m.documents.Documents(r.Context())
	if err != nil {
		// The page is still usable without the list.
		m.logger.Error("Failed to get documents", slog.String(errLoggerKey, err.Error()))
	}

	data := homePageData{
		Messages: m.messageViews(sess.Messages()),
		Pending:  sess.Pending(),
		Scope:    m.scopeView(r.Context(), sess.CurrentScope()),
		Upload: uploadView{
			Status:    string(sess.UploadStatus()),
			Uploading: sess.Uploading(),
		},
		Documents: docs,
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleScope leaves single-document mode: subsequent questions target the global corpus. The
// conversation is kept. It responds with the rendered scope badge.
func (m Main) HandleScope(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controller(w, r)
	ctrl.ClearScope()

	if err := m.templates.ExecuteTemplate(w, "scope_badge", scopeView{}); err != nil {
		m.logger.Error("Failed to render scope", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleMessages renders the conversation of the caller's session. The page reloads it whenever its
// event stream (re)connects, to pick up resolutions published while it was not subscribed.
func (m Main) HandleMessages(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controller(w, r)

	data := homePageData{Messages: m.messageViews(ctrl.Session().Messages())}
	if err := m.templates.ExecuteTemplate(w, "chatbox", data); err != nil {
		m.logger.Error("Failed to render messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m Main) messageViews(msgs []models.Message) []message {
	views := make([]message, len(msgs))
	for i := range msgs {
		views[i] = m.messageView(msgs[i])
	}
	return views
}

func (m Main) scopeView(ctx context.Context, docID string) scopeView {
	view := scopeView{DocID: docID}
	if docID == "" {
		return view
	}

	doc, found, err := m.documents.Document(ctx, docID)
	if err != nil {
		m.logger.Warn("Failed to look up document",
			slog.String("docID", docID),
			slog.String(errLoggerKey, err.Error()))
		return view
	}
	if found {
		view.Filename = doc.Filename
	}
	return view
}
