package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/sms-expense-pipeline/internal/auth"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/middleware"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/swagger"
	"github.com/go-chi/chi"
)

// RouteOptions carries the cross-cutting settings of the HTTP surface.
type RouteOptions struct {
	AllowedOrigins string
	OpenAPIPath    string
	// RequestValidator is applied to every documented route when set.
	RequestValidator func(http.Handler) http.Handler
}

func RegisterAllRoutes(router *chi.Mux, opts RouteOptions, healthHandler *HealthHandler, authHandler *auth.Handler, rawMessageHandler *rawmessage.Handler, expenseHandler *expense.Handler, sourceHandler *source.Handler, logger *slog.Logger) {
	validate := opts.RequestValidator
	if validate == nil {
		validate = func(next http.Handler) http.Handler { return next }
	}

	// Apply global middleware
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI document and Swagger UI live outside the API prefix
	if opts.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, opts.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if healthHandler != nil {
			r.Get("/health", healthHandler.healthCheckHandler)
			r.Get("/ping", healthHandler.pingHandler)
		}

		r.Group(func(pub chi.Router) {
			pub.Use(validate)
			if sourceHandler != nil {
				pub.Get("/sources", sourceHandler.GetSources)
			}
		})

		if authHandler == nil {
			return
		}

		// Protected routes that require a device token
		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)
			pr.Use(validate)

			if rawMessageHandler != nil {
				pr.Post("/sms", rawMessageHandler.Ingest)
				pr.Get("/raw-messages", rawMessageHandler.List)
				pr.Post("/raw-messages/{id}/replay", rawMessageHandler.Replay)
			}

			if expenseHandler != nil {
				pr.Route("/expenses", func(er chi.Router) {
					er.Get("/", expenseHandler.GetExpenses)
					er.Get("/{id}", expenseHandler.GetExpense)
					er.Patch("/{id}", expenseHandler.UpdateExpense)
				})
			}
		})
	})
}
