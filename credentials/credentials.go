// Package credentials performs the OAuth2 client-credentials exchange used for
// server-to-server catalog lookups that are not tied to a user.
package credentials

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuthFailed is returned for every failure that is not a structured
// response from the authorization server. The underlying cause is logged by
// the Fetcher and never returned.
var ErrAuthFailed = errors.New("authentication failed")

// Credentials identify this application to the authorization server. Both
// values are treated as opaque.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Token is a successful token response.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	Expiry       time.Time `json:"-"`
}

// AuthError is a structured error response ({"error", "error_description"})
// from the token endpoint.
type AuthError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authentication failed: %s", e.Code)
	}
	return fmt.Sprintf("authentication failed: %s: %s", e.Code, e.Description)
}
