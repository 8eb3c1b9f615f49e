package router

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/anonymousobject/shuushuu-api-sub001/internal/auth"
	"github.com/anonymousobject/shuushuu-api-sub001/internal/auth/repo"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes wires the auth subsystem onto the standard library's ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, cfg auth.Config) http.Handler {
	store := repo.NewStore(db)
	svc := auth.NewService(store, nil, cfg, logger)
	handler := auth.NewHandler(svc, logger)
	guard := auth.RequireAccessToken(svc.Issuer(), logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /shuushuu-api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /shuushuu-api/auth/login", handler.Login)
	mux.HandleFunc("POST /shuushuu-api/auth/refresh", handler.Refresh)
	mux.HandleFunc("POST /shuushuu-api/auth/logout", handler.Logout)
	mux.Handle("POST /shuushuu-api/auth/logout-all", guard(http.HandlerFunc(handler.LogoutAll)))
	mux.Handle("PUT /shuushuu-api/auth/password", guard(http.HandlerFunc(handler.ChangePassword)))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
