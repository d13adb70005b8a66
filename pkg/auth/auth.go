// Package auth provides bearer token handling for the NoteScript API.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken extracts the token from an HTTP request.
func ExtractToken(r *http.Request) string {
	// Check Authorization header
	auth := r.Header.Get("Authorization")
	if auth != "" {
		// Handle "Bearer " prefix if present
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		return auth
	}

	// Check X-Auth-Token header
	if token := r.Header.Get("X-Auth-Token"); token != "" {
		return token
	}

	return ""
}

// TokenEqual compares two tokens in constant time.
func TokenEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ServiceAuth provides service-level authentication for outgoing requests.
type ServiceAuth struct {
	serviceToken string
}

// NewServiceAuth creates a new service authenticator.
func NewServiceAuth(serviceToken string) *ServiceAuth {
	return &ServiceAuth{
		serviceToken: serviceToken,
	}
}

// GetServiceToken returns the service token for API calls.
func (sa *ServiceAuth) GetServiceToken() string {
	return sa.serviceToken
}

// AddAuthHeader adds the service token to an HTTP request.
func (sa *ServiceAuth) AddAuthHeader(req *http.Request) {
	if sa.serviceToken == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+sa.serviceToken)
}
