package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/types"
)

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

// UserFromContext returns the authenticated user of the request.
func UserFromContext(ctx context.Context) *types.User {
	user, _ := ctx.Value(userKey).(*types.User)
	return user
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every request with its status and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	logger := globals.AppLogger.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Header.Get("Upgrade") != "" {
			// the hijacked connection outlives the request, recording the status is not possible
			logger.Debug("upgrade", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// corsMiddleware allows cross origin requests from origins. An empty list allows any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization, If-None-Match")
				w.Header().Set("Access-Control-Expose-Headers", "ETag")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origins []string, origin string) bool {
	return len(origins) == 0 || lo.Contains(origins, "*") || lo.Contains(origins, origin)
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticate resolves the user of token, using the user cache.
func (s *Server) authenticate(ctx context.Context, token string) (*types.User, error) {
	userId, err := s.sessions.Verify(token)
	if err != nil {
		return nil, types.Unauthorized("not authorized, token failed")
	}
	if cached, ok := s.users.Get(userId); ok {
		return cached.(*types.User), nil
	}
	user, err := s.accounts.GetUser(ctx, userId)
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.Unauthorized("not authorized, token failed")
	}
	if err != nil {
		return nil, err
	}
	s.users.Add(userId, user)
	return user, nil
}

// authMiddleware rejects requests without a valid bearer token and puts the user into the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, r, types.Unauthorized("not authorized, no token"))
			return
		}
		user, err := s.authenticate(r.Context(), token)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
