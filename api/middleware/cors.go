package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the configured web origins call the API with credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, idempotencyReplayed},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
