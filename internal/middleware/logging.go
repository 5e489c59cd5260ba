// Package middleware provides HTTP middleware for the presence service:
// structured request logging, bearer authentication and subscribe rate limits.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/welldanyogia/presence-stream/internal/logger"
)

// StructuredLogger logs one slog record per request, after it completes.
// Event streams are logged when the client goes away, with their full duration.
// Run it after middleware.RequestID so the request id becomes the correlation id.
func StructuredLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())
			r = r.WithContext(logger.SetCorrelationID(r.Context(), requestID))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			attrs := []slog.Attr{
				slog.String("correlation_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
			}

			level, msg := slog.LevelInfo, "HTTP request completed"
			switch {
			case status >= 500:
				level, msg = slog.LevelError, "HTTP request completed with server error"
			case status >= 400:
				level, msg = slog.LevelWarn, "HTTP request completed with client error"
			}
			log.LogAttrs(context.Background(), level, msg, attrs...)
		})
	}
}
