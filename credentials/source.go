package credentials

import (
	"context"
	"time"
)

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = 30 * time.Second

// Source hands out a cached client-credentials token and fetches a new one
// when it is missing or about to expire. Tokens are only kept in memory.
type Source struct {
	fetcher *Fetcher
	creds   Credentials

	// Now is used for expiry checks; tests may replace it.
	Now func() time.Time

	// sem is a one-slot lock held for the whole exchange; waiters select on
	// it so their context can end the wait.
	sem chan struct{}
	cur *Token
}

func NewSource(f *Fetcher, creds Credentials) *Source {
	return &Source{
		fetcher: f,
		creds:   creds,
		Now:     time.Now,
		sem:     make(chan struct{}, 1),
	}
}

// Token returns the cached token when it is still valid, otherwise it
// performs a fresh exchange. Concurrent callers share a single exchange:
// they wait for it to finish, or give up with ErrAuthFailed once their own
// context is done.
func (s *Source) Token(ctx context.Context) (*Token, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.fetcher.logger.Warn().
			Err(ctx.Err()).
			Msg("gave up waiting for client credentials exchange")
		return nil, ErrAuthFailed
	}
	defer func() { <-s.sem }()

	if s.valid() {
		return s.cur, nil
	}

	tok, err := s.fetcher.FetchAccessToken(ctx, s.creds)
	if err != nil {
		return nil, err
	}
	if tok.Expiry.IsZero() && tok.ExpiresIn > 0 {
		tok.Expiry = s.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	s.cur = tok
	return tok, nil
}

// AccessToken is Token reduced to the bearer string.
func (s *Source) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token, e.g. after the API rejected it.
func (s *Source) Invalidate() {
	s.sem <- struct{}{}
	s.cur = nil
	<-s.sem
}

func (s *Source) valid() bool {
	if s.cur == nil || s.cur.AccessToken == "" {
		return false
	}
	// a token without an expiry is used until invalidated
	if s.cur.Expiry.IsZero() {
		return true
	}
	return s.Now().Add(refreshMargin).Before(s.cur.Expiry)
}
