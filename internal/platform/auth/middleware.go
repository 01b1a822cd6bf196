package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Validator verifies bearer tokens.
type Validator interface {
	Validate(tokenString string) (*Claims, error)
}

type contextKeyActorID struct{}

// WithActorID stores the authenticated actor on ctx.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID{}, actorID)
}

// ActorID returns the authenticated actor, or "" when the request carried no
// valid token.
func ActorID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyActorID{}).(string)
	return id
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's user id on the request context.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token", "path", r.URL.Path)
				writeUnauthorized(ctx, w, logger, "missing or invalid Authorization header")
				return
			}
			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token", "path", r.URL.Path, "error", err)
				writeUnauthorized(ctx, w, logger, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActorID(ctx, claims.UserID)))
		})
	}
}

func writeUnauthorized(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated", "message": msg}); err != nil {
		logger.ErrorContext(ctx, "failed to write unauthorized response", "error", err)
	}
}
