package pkce_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/markbates/goth"
	"github.com/moodring/authbootstrap/pkce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementsSession(t *testing.T) {
	s := &pkce.Session{}
	assert.Implements(t, (*goth.Session)(nil), s)
}

func TestGetAuthURL(t *testing.T) {
	s := &pkce.Session{}

	_, err := s.GetAuthURL()
	assert.Error(t, err)

	s.AuthURL = "/foo"
	u, _ := s.GetAuthURL()
	assert.Equal(t, "/foo", u)
}

func TestMarshal(t *testing.T) {
	s := &pkce.Session{}
	data := s.Marshal()
	assert.Equal(t, `{"AuthURL":"","AccessToken":"","RefreshToken":"","ExpiresAt":"0001-01-01T00:00:00Z","CodeVerifier":""}`, data)
}

func TestUnmarshalSessionKeepsVerifier(t *testing.T) {
	p := pkce.New("cid", "http://localhost/auth/callback", "https://accounts.example.com", "https://api.example.com")
	begun, err := p.BeginAuth("state")
	require.NoError(t, err)

	restored, err := p.UnmarshalSession(begun.Marshal())
	require.NoError(t, err)
	assert.Equal(t, begun.(*pkce.Session).CodeVerifier, restored.(*pkce.Session).CodeVerifier)

	_, err = p.UnmarshalSession("not json")
	assert.Error(t, err)
}

func TestAuthorizeSendsVerifier(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var form url.Values
	httpmock.RegisterResponder(
		"POST",
		pkceAccountsURL+"/api/token",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseForm(); err != nil {
				return nil, err
			}
			form = req.PostForm
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"access_token":  "access",
				"token_type":    "Bearer",
				"refresh_token": "refresh",
				"expires_in":    3600,
			})
		},
	)

	p := provider()
	session, err := p.BeginAuth("state")
	require.NoError(t, err)
	s := session.(*pkce.Session)
	verifier := s.CodeVerifier

	tok, err := s.Authorize(p, url.Values{"code": {"auth-code"}})
	require.NoError(t, err)

	assert.Equal(t, "access", tok)
	assert.Equal(t, "access", s.AccessToken)
	assert.Equal(t, "refresh", s.RefreshToken)
	assert.False(t, s.ExpiresAt.IsZero())
	assert.Empty(t, s.CodeVerifier)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, verifier, form.Get("code_verifier"))
	assert.Equal(t, pkceClientID, form.Get("client_id"))
	assert.Empty(t, form.Get("client_secret"))
}

func TestAuthorizeRequiresVerifier(t *testing.T) {
	p := provider()
	s := &pkce.Session{AuthURL: "/foo"}

	_, err := s.Authorize(p, url.Values{"code": {"auth-code"}})
	assert.EqualError(t, err, "session has no code verifier")
}

func TestAuthorizeTokenError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(
		"POST",
		pkceAccountsURL+"/api/token",
		httpmock.NewStringResponder(400, `{"error":"invalid_grant","error_description":"code_verifier was incorrect"}`),
	)

	p := provider()
	s := &pkce.Session{CodeVerifier: "wrong"}

	_, err := s.Authorize(p, url.Values{"code": {"auth-code"}})
	assert.Error(t, err)
	assert.Empty(t, s.AccessToken)
}
