package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator verifies HMAC-signed bearer tokens from the
// Authorization header. The token subject becomes the user ID.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates a JWT authenticator with the given HMAC secret.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// Authenticate validates the request's bearer token.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*UserContext, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, fmt.Errorf("parsing bearer token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	uc := &UserContext{UserID: sub, AuthType: "jwt"}
	if name, ok := claims["name"].(string); ok {
		uc.Name = name
	}
	return uc, nil
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("no authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	return token, nil
}

// Verify interface compliance.
var _ Authenticator = (*JWTAuthenticator)(nil)
