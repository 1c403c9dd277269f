package http

import (
	"context"
	"net/http"
	"strings"

	apperrors "familybudget/internal/errors"
	"familybudget/internal/log"
)

type contextKey string

const (
	contextKeyUserID contextKey = "user_id"
	contextKeyEmail  contextKey = "email"
)

// requireAuth validates the bearer access token and attaches the user to
// the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.fail(w, r, apperrors.Unauthorized("Authentication credentials were not provided."))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			s.fail(w, r, apperrors.Unauthorized("Invalid authorization header format"))
			return
		}

		claims, err := s.tokens.Validate(token)
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(), "Token rejected",
				log.FieldErrorType, log.ErrorTypeAuth,
				log.FieldError, err.Error())
			s.fail(w, r, apperrors.Unauthorized("Invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, contextKeyEmail, claims.Email)
		logger := log.FromContext(ctx).With(log.FieldUserID, claims.UserID)
		ctx = log.NewContext(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getUserID returns the authenticated user ID, or "" outside requireAuth.
func getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// userRateKey throttles authenticated clients per user and anonymous ones
// per address.
func (s *Server) userRateKey(r *http.Request) string {
	if id := getUserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + s.detector.ClientIP(r)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.throttled.Inc()
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w, s.logger)
}
