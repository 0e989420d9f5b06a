package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/shelf-api/internal/api"
	"github.com/phrazzld/shelf-api/internal/api/middleware"
)

// setupRouter creates the main router with all middleware and routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewTraceMiddleware(app.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AuthStatus)

	authHandler := api.NewAuthHandler(app.accountService, api.CookieConfig{
		Name:   app.config.Auth.CookieName,
		Secure: app.config.Auth.CookieSecure,
	})
	batchHandler := api.NewBatchHandler(app.tracker, app.config.Batch.MaxRows)
	authMiddleware := middleware.NewAuthMiddleware(app.authenticator, app.config.Auth.CookieName)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)
		// Logout resolves the credential itself so stale tokens still clear cookies.
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(middleware.RequireAuth)

			r.Post("/books/bulk-upload", batchHandler.BulkUpload)
			r.Get("/books/task-status", batchHandler.TaskStatus)
			r.Get("/books/batch-status", batchHandler.BatchStatus)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
