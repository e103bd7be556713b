package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader is the request header carrying an API key.
const APIKeyHeader = "X-API-Key"

// APIKey is one accepted key: a display name and the bcrypt hash of the
// key value. Plaintext keys are never stored.
type APIKey struct {
	Name string
	Hash string
}

// APIKeyAuthenticator authenticates requests by API key header.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(keys []APIKey) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: append([]APIKey(nil), keys...)}
}

// Authenticate matches the request's API key against the accepted hashes.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*UserContext, error) {
	presented := r.Header.Get(APIKeyHeader)
	if presented == "" {
		return nil, fmt.Errorf("no %s header", APIKeyHeader)
	}

	for _, key := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(presented)) == nil {
			return &UserContext{
				UserID:   "apikey:" + key.Name,
				Name:     key.Name,
				AuthType: "apikey",
			}, nil
		}
	}
	return nil, fmt.Errorf("invalid API key")
}

// HashKey returns the bcrypt hash of a key value, for provisioning.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing API key: %w", err)
	}
	return string(hash), nil
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
