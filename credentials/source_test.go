package credentials_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/moodring/authbootstrap/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingResponder(n *int64) httpmock.Responder {
	return func(r *http.Request) (*http.Response, error) {
		id := atomic.AddInt64(n, 1)
		return httpmock.NewJsonResponse(200, map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", id),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
}

func TestSourceCachesToken(t *testing.T) {
	f, mt, _ := newFetcher(t)
	var n int64
	mt.RegisterResponder("POST", tokenURL, countingResponder(&n))

	s := credentials.NewSource(f, creds)

	first, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	second, err := s.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "token-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestSourceRefreshesNearExpiry(t *testing.T) {
	f, mt, _ := newFetcher(t)
	var n int64
	mt.RegisterResponder("POST", tokenURL, countingResponder(&n))

	s := credentials.NewSource(f, creds)

	tok, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	s.Now = func() time.Time { return time.Now().Add(time.Hour - 10*time.Second) }

	tok, err = s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestSourceInvalidate(t *testing.T) {
	f, mt, _ := newFetcher(t)
	var n int64
	mt.RegisterResponder("POST", tokenURL, countingResponder(&n))

	s := credentials.NewSource(f, creds)

	_, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	s.Invalidate()

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok.AccessToken)
}

func TestSourceDoesNotCacheFailures(t *testing.T) {
	f, mt, _ := newFetcher(t)
	mt.RegisterResponder("POST", tokenURL, httpmock.NewStringResponder(400, `{"error":"invalid_client"}`))

	s := credentials.NewSource(f, creds)

	_, err := s.AccessToken(context.Background())
	var aerr *credentials.AuthError
	assert.True(t, errors.As(err, &aerr))

	var n int64
	mt.RegisterResponder("POST", tokenURL, countingResponder(&n))

	tok, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestSourceConcurrentCallersShareExchange(t *testing.T) {
	f, mt, _ := newFetcher(t)
	var n int64
	mt.RegisterResponder("POST", tokenURL, countingResponder(&n))

	s := credentials.NewSource(f, creds)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.AccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-1", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestSourceWaiterHonorsContext(t *testing.T) {
	f, mt, _ := newFetcher(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	mt.RegisterResponder("POST", tokenURL, func(r *http.Request) (*http.Response, error) {
		close(entered)
		<-release
		return httpmock.NewJsonResponse(200, map[string]interface{}{
			"access_token": "token-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	s := credentials.NewSource(f, creds)

	done := make(chan string)
	go func() {
		tok, err := s.AccessToken(context.Background())
		assert.NoError(t, err)
		done <- tok
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.AccessToken(ctx)
	assert.Same(t, credentials.ErrAuthFailed, err)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	assert.Equal(t, "token-1", <-done)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}
