package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns go-chi/cors middleware for the allowed origins. An empty list
// allows every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}
