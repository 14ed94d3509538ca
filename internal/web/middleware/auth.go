package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/config"
	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/go-playground/validator/v10"
)

var (
	errMissingTenant = core.ErrMissingTenant
	errInvalidTenant = errors.New("invalid tenant id")
	errMissingKey    = errors.New("missing API key")
	errInvalidKey    = errors.New("invalid API key")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// APIKeyAuth returns middleware that validates the X-API-Key header against
// the configured keys. With RequireAPIKey off every request passes.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				reject(w, http.StatusUnauthorized, "AUTH001", errMissingKey)
				return
			}
			if !isValidAPIKey(apiKey, cfg.APIKeys) {
				slog.Warn("auth: invalid API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				reject(w, http.StatusForbidden, "AUTH002", errInvalidKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isValidAPIKey compares against every key in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}

// Tenant resolves the caller's tenant from the configured header and stores
// it, with the client IP and User-Agent, on the request context.
//
// A missing header is rejected when RequireTenant is set; otherwise the
// default tenant is used.
func Tenant(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := strings.TrimSpace(r.Header.Get(cfg.TenantHeader))
			if tenant == "" {
				if cfg.RequireTenant {
					reject(w, http.StatusUnauthorized, "", errMissingTenant)
					return
				}
				tenant = cfg.DefaultTenant
			}
			if err := validate.Var(tenant, "max=128,printascii"); err != nil {
				reject(w, http.StatusBadRequest, "AUTH003", errInvalidTenant)
				return
			}

			ctx := core.ContextWithTenant(r.Context(), tenant)
			ctx = core.ContextWithIPAddress(ctx, extractIP(r.RemoteAddr))
			ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// reject writes the JSON error body used by the web layer. An empty code
// takes the code and wording from core.MapError.
func reject(w http.ResponseWriter, status int, code string, err error) {
	body := map[string]string{"error": err.Error(), "message": err.Error(), "code": code}
	if code == "" {
		msg := core.MapError(err)
		body["message"] = msg.Message
		body["action"] = msg.Action
		body["code"] = msg.Code
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
