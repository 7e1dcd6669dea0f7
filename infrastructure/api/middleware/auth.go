package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the API key on mutating requests.
const APIKeyHeader = "X-API-KEY"

// AuthConfig holds the accepted API keys. No keys disables authentication.
type AuthConfig struct {
	keys [][]byte
}

// NewAuthConfigWithKeys creates an AuthConfig from a list of keys.
// Empty keys are ignored.
func NewAuthConfigWithKeys(keys []string) AuthConfig {
	cfg := AuthConfig{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		cfg.keys = append(cfg.keys, []byte(k))
	}
	return cfg
}

// Enabled reports whether any key is configured.
func (c AuthConfig) Enabled() bool { return len(c.keys) > 0 }

// Valid reports whether key matches one of the configured keys.
func (c AuthConfig) Valid(key string) bool {
	candidate := []byte(key)
	for _, k := range c.keys {
		if subtle.ConstantTimeCompare(k, candidate) == 1 {
			return true
		}
	}
	return false
}

// WriteProtect requires a valid API key on every method except GET, HEAD
// and OPTIONS.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled() || readOnly(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				WriteError(w, r, NewAuthenticationError("missing "+APIKeyHeader+" header"), nil)
				return
			}
			if !config.Valid(key) {
				WriteError(w, r, NewAuthenticationError("invalid API key"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteProtectAuth is WriteProtect over a plain key list.
func WriteProtectAuth(keys []string) func(http.Handler) http.Handler {
	return WriteProtect(NewAuthConfigWithKeys(keys))
}

func readOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
