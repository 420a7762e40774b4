package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer converts a handler panic into a logged 500. When the handler
// had already started its response only the log line is written.
// http.ErrAbortHandler propagates so net/http drops the connection.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					"request_id", GetRequestID(r.Context()),
					"route", r.Method+" "+r.URL.Path,
					"panic", v,
					"response_started", rec.status != 0,
					"stack", string(debug.Stack()),
				)
				if rec.status == 0 {
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
