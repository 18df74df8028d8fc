package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(apiHandler *APIHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes live under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		// Owner-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.OwnerMiddleware)

			r.Post("/documents", apiHandler.UploadDocumentHandler)
			r.Delete("/documents/{documentID}", apiHandler.DeleteDocumentHandler)
			r.Post("/documents/{documentID}/analyze", apiHandler.AnalyzeDocumentHandler)

			r.Post("/ask", apiHandler.AskHandler)
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
