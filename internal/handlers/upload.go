package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/rag-web-ui/internal/session"
)

const maxUploadMemory = 32 << 20

// HandleUpload forwards the "file" multipart field to the answer backend on behalf of the caller's
// session, and responds with the rendered upload status. On success the session has switched to the
// document's scope and a notice has been pushed through SSE.
//
// A missing file is rejected with 400 and an upload started while another is in flight with 409. A
// failed upload responds with 502; the status partial tells a connection error from a rejection.
func (m Main) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controller(w, r)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		m.logger.Error("Failed to parse upload form", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "A file is required", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			m.logger.Warn("Failed to remove upload temporary files", slog.String(errLoggerKey, err.Error()))
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	code := http.StatusOK
	if _, err := ctrl.Upload(r.Context(), header.Filename, header.Size, file); err != nil {
		switch {
		case errors.Is(err, session.ErrNoFile):
			http.Error(w, "A file is required", http.StatusBadRequest)
			return
		case errors.Is(err, session.ErrUploadInProgress):
			http.Error(w, "An upload is already in progress", http.StatusConflict)
			return
		}
		code = http.StatusBadGateway
	}

	sess := ctrl.Session()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := m.templates.ExecuteTemplate(w, "upload_status", uploadView{
		Status:    string(sess.UploadStatus()),
		Uploading: sess.Uploading(),
	}); err != nil {
		m.logger.Error("Failed to render upload status", slog.String(errLoggerKey, err.Error()))
	}
}
