package pkce

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/markbates/goth"
	"golang.org/x/oauth2"
)

// Session holds a login attempt between the redirect and the callback. The
// verifier stays here and is only ever sent to the token endpoint.
type Session struct {
	AuthURL      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CodeVerifier string
}

// GetAuthURL returns the URL for the authentication end-point for the provider.
func (s *Session) GetAuthURL() (string, error) {
	if s.AuthURL == "" {
		return "", errors.New(goth.NoAuthUrlErrorMessage)
	}
	return s.AuthURL, nil
}

// Marshal encodes the session as JSON for the gothic session cookie. The
// cookie holds the verifier until the callback, so the store must be
// encrypted or at least signed.
func (s *Session) Marshal() string {
	buf, _ := json.Marshal(s)
	return string(buf)
}

// Authorize exchanges the authorization code, proving possession of the
// verifier whose challenge was sent in BeginAuth.
func (s *Session) Authorize(provider goth.Provider, params goth.Params) (string, error) {
	p := provider.(*Provider)

	if s.CodeVerifier == "" {
		return "", errors.New("session has no code verifier")
	}

	token, err := p.Config.Exchange(
		p.exchangeContext(),
		params.Get("code"),
		oauth2.SetAuthURLParam("code_verifier", s.CodeVerifier),
	)
	if err != nil {
		return "", err
	}

	if !token.Valid() {
		return "", errors.New("invalid token received from provider")
	}

	s.AccessToken = token.AccessToken
	s.RefreshToken = token.RefreshToken
	s.ExpiresAt = token.Expiry
	s.CodeVerifier = ""

	return token.AccessToken, nil
}

// UnmarshalSession restores a Session written by Marshal.
func (p *Provider) UnmarshalSession(data string) (goth.Session, error) {
	s := &Session{}
	if err := json.Unmarshal([]byte(data), s); err != nil {
		return nil, err
	}
	return s, nil
}
