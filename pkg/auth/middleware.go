package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Authenticator resolves a request to an authenticated user.
type Authenticator interface {
	Authenticate(r *http.Request) (*UserContext, error)
}

// ChainedAuthenticator tries multiple authenticators in order; the first
// success wins. With AllowAnonymous set, exhausting the chain yields the
// anonymous user instead of an error.
type ChainedAuthenticator struct {
	authenticators []Authenticator
	allowAnonymous bool
}

// NewChainedAuthenticator creates a chained authenticator.
func NewChainedAuthenticator(allowAnonymous bool, authenticators ...Authenticator) *ChainedAuthenticator {
	return &ChainedAuthenticator{
		authenticators: authenticators,
		allowAnonymous: allowAnonymous,
	}
}

// Authenticate tries each authenticator in order.
func (c *ChainedAuthenticator) Authenticate(r *http.Request) (*UserContext, error) {
	var lastErr error
	for _, a := range c.authenticators {
		uc, err := a.Authenticate(r)
		if err == nil && uc != nil {
			return uc, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if c.allowAnonymous {
		return &UserContext{UserID: "anonymous", AuthType: "anonymous"}, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("authentication failed")
}

// Verify interface compliance.
var _ Authenticator = (*ChainedAuthenticator)(nil)

// Middleware authenticates every request and injects the user into the
// request context. Failures get a 401 JSON body.
func Middleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc, err := authenticator.Authenticate(r)
			if err != nil {
				slog.Warn("auth: request rejected", "path", r.URL.Path, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), uc)))
		})
	}
}
