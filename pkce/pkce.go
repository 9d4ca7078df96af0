package pkce

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/markbates/goth"
	"golang.org/x/oauth2"
)

const (
	authPath    = "/authorize"
	tokenPath   = "/api/token"
	profilePath = "/v1/me"
)

// Provider is a goth provider for the music service's authorization-code flow
// with PKCE. It never needs a client secret.
type Provider struct {
	*oauth2.Config
	ProfileURL     string
	HTTPClient     *http.Client
	VerifierLength int
	name           string
}

type UserInfo struct {
	UserID      string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// New returns a provider whose authorize and token endpoints live under
// accountsURL and whose profile endpoint lives under apiURL.
func New(clientID, redirectURI, accountsURL, apiURL string, scopes ...string) *Provider {
	accountsURL = strings.TrimRight(accountsURL, "/")
	apiURL = strings.TrimRight(apiURL, "/")

	p := &Provider{
		Config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   accountsURL + authPath,
				TokenURL:  accountsURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ProfileURL:     apiURL + profilePath,
		VerifierLength: DefaultVerifierLength,
		name:           "pkce",
	}
	if len(scopes) > 0 {
		p.Config.Scopes = make([]string, len(scopes))
		copy(p.Config.Scopes, scopes)
	} else {
		p.Config.Scopes = []string{"user-read-email", "user-read-private"}
	}
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) SetName(name string) {
	p.name = name
}

func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) exchangeContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, p.client())
}

// BeginAuth creates a fresh verifier for this login attempt and returns a
// session whose AuthURL carries the matching S256 challenge.
func (p *Provider) BeginAuth(state string) (goth.Session, error) {
	pair, err := NewPair(p.VerifierLength)
	if err != nil {
		return nil, err
	}

	s := &Session{
		AuthURL: p.Config.AuthCodeURL(
			state,
			oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
			oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
		),
		CodeVerifier: pair.Verifier,
	}

	return s, nil
}

func (p *Provider) FetchUser(session goth.Session) (goth.User, error) {
	s := session.(*Session)
	user := goth.User{
		AccessToken:  s.AccessToken,
		Provider:     p.Name(),
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}

	if user.AccessToken == "" {
		return user, fmt.Errorf("%s cannot get user information without accessToken", p.Name())
	}

	req, err := http.NewRequest(http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return user, err
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := p.client().Do(req)
	if err != nil {
		return user, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return user, fmt.Errorf("%s responded with a %d while trying to fetch user information", p.Name(), resp.StatusCode)
	}

	var rawData map[string]interface{}
	userInfo := &UserInfo{}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return user, err
	}

	err = json.Unmarshal(body, &rawData)
	if err != nil {
		return user, err
	}

	err = json.Unmarshal(body, userInfo)
	if err != nil {
		return user, err
	}

	user.Email = userInfo.Email
	user.Name = userInfo.DisplayName
	user.NickName = userInfo.DisplayName
	user.Location = userInfo.Country
	user.RawData = rawData
	user.UserID = userInfo.UserID
	if len(userInfo.Images) > 0 {
		user.AvatarURL = userInfo.Images[0].URL
	}

	return user, nil
}

func (p *Provider) Debug(_ bool) {}

func (p *Provider) RefreshToken(refreshToken string) (*oauth2.Token, error) {
	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}
	tokenSource := p.Config.TokenSource(p.exchangeContext(), token)
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return newToken, nil
}

func (p *Provider) RefreshTokenAvailable() bool {
	return true
}
