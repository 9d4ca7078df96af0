package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultTokenURL is the music service's token endpoint.
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultTimeout bounds a single exchange when no client is supplied.
	// Failed exchanges are not retried.
	DefaultTimeout = 10 * time.Second
)

// Options configure a Fetcher. Zero values select the defaults.
type Options struct {
	TokenURL   string
	Scopes     []string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Fetcher exchanges client credentials for access tokens. It holds no
// per-call state and is safe for concurrent use.
type Fetcher struct {
	tokenURL string
	scopes   []string
	client   *http.Client
	logger   zerolog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		tokenURL: opts.TokenURL,
		scopes:   opts.Scopes,
		client:   opts.HTTPClient,
		logger:   log.Logger,
	}
	if f.tokenURL == "" {
		f.tokenURL = DefaultTokenURL
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Logger != nil {
		f.logger = *opts.Logger
	}
	return f
}

// FetchAccessToken performs one client-credentials POST against the token
// endpoint. A structured error response is returned as *AuthError; any other
// failure is logged and reported as ErrAuthFailed.
func (f *Fetcher) FetchAccessToken(ctx context.Context, creds Credentials) (*Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     f.tokenURL,
		Scopes:       f.scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := cfg.Token(ctx)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			if aerr := protocolError(rerr); aerr != nil {
				f.logger.Warn().
					Str("token_url", f.tokenURL).
					Int("status", aerr.StatusCode).
					Str("error_code", aerr.Code).
					Msg("token endpoint rejected client credentials")
				return nil, aerr
			}
		}

		f.logger.Error().
			Err(err).
			Str("token_url", f.tokenURL).
			Msg("client credentials exchange failed")
		return nil, ErrAuthFailed
	}

	return fromOAuth2(tok), nil
}

// protocolError turns a token endpoint error response into an AuthError, or
// returns nil when the response names no error code. x/oauth2 chooses its
// parser from the Content-Type header, so a JSON body labelled text/plain
// arrives without a code and is decoded again here.
func protocolError(rerr *oauth2.RetrieveError) *AuthError {
	aerr := &AuthError{
		Code:        rerr.ErrorCode,
		Description: rerr.ErrorDescription,
	}
	if rerr.Response != nil {
		aerr.StatusCode = rerr.Response.StatusCode
	}

	if aerr.Code == "" && aerr.StatusCode >= 300 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(rerr.Body, &body) == nil {
			aerr.Code = body.Error
			aerr.Description = body.ErrorDescription
		}
	}

	if aerr.Code == "" {
		return nil
	}
	return aerr
}

func fromOAuth2(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		t.Scope = scope
	}
	t.ExpiresIn = expiresIn(tok.Extra("expires_in"))
	if t.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		t.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	return t
}

func expiresIn(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

var defaultFetcher = NewFetcher(Options{})

// FetchAccessToken exchanges the given client credentials against
// DefaultTokenURL and returns only the bearer token.
func FetchAccessToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	tok, err := defaultFetcher.FetchAccessToken(ctx, Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
