package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"missionline/internal/repo"
)

// AuthConfig controls how requests are authenticated. An empty JWTSecret
// disables bearer tokens; API keys keep working either way.
type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
}

type contextKey string

const actorContextKey contextKey = "missionline.actor"

// actorIDFromContext returns the authenticated actor or a 401 envelope.
func actorIDFromContext(ctx context.Context) (string, error) {
	if actor, ok := ctx.Value(actorContextKey).(string); ok && actor != "" {
		return actor, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// newAuthMiddleware authenticates every request under basePath except the
// health probe and the docs surfaces. Order of precedence: bearer JWT, then
// X-Api-Key, then (when enabled) the legacy X-Actor-Id header.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo, logger *zap.Logger) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "/health")
	openAPIPath := path.Join(basePath, "/openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := req.URL.Path
			if p == healthPath || p == openAPIPath || p == "/docs" || strings.HasPrefix(p, "/openapi") {
				next.ServeHTTP(w, req)
				return
			}

			actor, err := authenticate(req, cfg, r)
			if err != nil {
				logger.Debug("authentication failed",
					zap.String("path", p),
					zap.Error(err))
				writeUnauthorized(w, err.Error())
				return
			}
			if actor != "" {
				req = req.WithContext(context.WithValue(req.Context(), actorContextKey, actor))
			}
			next.ServeHTTP(w, req)
		})
	}
}

func authenticate(req *http.Request, cfg AuthConfig, r repo.Repo) (string, error) {
	if auth := req.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", fmt.Errorf("authorization header must use the Bearer scheme")
		}
		if cfg.JWTSecret == "" {
			return "", fmt.Errorf("bearer tokens are not configured")
		}
		return actorFromJWT(token, cfg.JWTSecret)
	}

	if key := req.Header.Get("X-Api-Key"); key != "" {
		stored, err := r.GetAPIKeyByHash(req.Context(), repo.HashAPIKey(key))
		if err == repo.ErrNotFound {
			return "", fmt.Errorf("unknown api key")
		}
		if err != nil {
			return "", err
		}
		return stored.ActorID, nil
	}

	if cfg.AllowLegacyActorHeader {
		if actor := strings.TrimSpace(req.Header.Get("X-Actor-Id")); actor != "" {
			return actor, nil
		}
	}
	return "", fmt.Errorf("no credentials provided")
}

func actorFromJWT(token, secret string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("token missing sub claim")
	}
	return sub, nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": apiErrorBody{Code: "unauthorized", Message: msg},
	})
}
