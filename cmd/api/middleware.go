package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"inspectpay/auth"
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log().WithFields(logrus.Fields{
			"module":      "api",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

// authenticate requires a valid bearer token and stores its identity on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			_ = writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, err := s.verifier.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			_ = writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok || !id.IsAdmin() {
			_ = writeJSONError(w, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorID(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.UserID
}
