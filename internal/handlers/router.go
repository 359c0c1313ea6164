package handlers

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the handlers of m, and the static assets in staticFS, to their routes.
func (m Main) Router(staticFS fs.FS) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(m.requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.Get("/", m.HandleHome)
	r.Get("/chats", m.HandleMessages)
	r.Post("/chats", m.HandleChats)
	r.Post("/chats/cancel", m.HandleCancel)
	r.Post("/uploads", m.HandleUpload)
	r.Delete("/scope", m.HandleScope)
	r.Get("/sse", m.HandleSSE)

	return r
}

func (m Main) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		m.logger.Debug("Request served",
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)))
	})
}
