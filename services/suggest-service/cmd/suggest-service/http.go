package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotsuggest/libs/config"
	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	"github.com/redis/go-redis/v9"
)

// httpHandler wraps mux with the service-wide middleware. Body limits are
// applied per route by the handlers package.
func httpHandler(logger *slog.Logger, mux *http.ServeMux, rdb *redis.Client) http.Handler {
	return httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 90*time.Second)),
		rateLimit(logger, rdb),
	)
}
