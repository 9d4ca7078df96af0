package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gobuffalo/flect"
	"github.com/moodring/authbootstrap/credentials"
	"github.com/rs/zerolog/hlog"
	"gopkg.in/yaml.v3"
)

// TokenSource supplies the client-credentials bearer token for catalog calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// Catalog is a read-only window onto part of the web API, e.g. /v1/browse,
// authenticated with the application's own token rather than a user's.
type Catalog struct {
	Name   string       `yaml:"name"`
	Slug   string       `yaml:"-"`
	Prefix string       `yaml:"prefix"`
	Public bool         `yaml:"public"`
	Config *Config      `yaml:"-"`
	Client *http.Client `yaml:"-"`
	Tokens TokenSource  `yaml:"-"`
}

// request headers that belong to the caller, not to the upstream API
var droppedHeaders = []string{"Authorization", "Cookie"}

func (c *Catalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "405 Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), c.Config.ProxyTimeout)
	defer cancel()

	path := strings.TrimPrefix(r.URL.EscapedPath(), "/"+c.Slug)
	url := strings.TrimRight(c.Config.APIURL, "/") + c.Prefix + path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	resp, err := c.do(ctx, r, url)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		// the cached token may have been revoked early
		resp.Body.Close()
		c.Tokens.Invalidate()
		hlog.FromRequest(r).Debug().Str("catalog", c.Name).Msg("retrying with a fresh token")
		resp, err = c.do(ctx, r, url)
	}
	if err != nil {
		c.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	hlog.FromRequest(r).Info().
		Str("catalog", c.Name).
		Str("upstream", c.Prefix+path).
		Int("upstream_status", resp.StatusCode).
		Msg("")

	for name, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err = io.Copy(w, resp.Body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("catalog", c.Name).Msg("copying upstream response")
	}
}

func (c *Catalog) do(ctx context.Context, r *http.Request, url string) (*http.Response, error) {
	token, err := c.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, url, nil)
	if err != nil {
		return nil, err
	}
	for name, values := range r.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	for _, name := range droppedHeaders {
		req.Header.Del(name)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.Client.Do(req)
}

func (c *Catalog) fail(w http.ResponseWriter, r *http.Request, err error) {
	var aerr *credentials.AuthError
	switch {
	case errors.As(err, &aerr):
		hlog.FromRequest(r).Error().
			Str("catalog", c.Name).
			Str("error_code", aerr.Code).
			Msg("token endpoint rejected catalog credentials")
		http.Error(w, "502 Bad Gateway", http.StatusBadGateway)
	case errors.Is(err, credentials.ErrAuthFailed):
		http.Error(w, "503 Service Unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		hlog.FromRequest(r).Error().Err(err).Str("catalog", c.Name).Send()
		http.Error(w, "504 Gateway Timeout", http.StatusGatewayTimeout)
	default:
		hlog.FromRequest(r).Error().Err(err).Str("catalog", c.Name).Send()
		http.Error(w, "502 Bad Gateway", http.StatusBadGateway)
	}
}

// loadCatalogs reads the slug-keyed catalog file. Entries without a name are
// titleized from their slug.
func loadCatalogs(name string, config *Config, client *http.Client, tokens TokenSource) ([]*Catalog, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return decodeCatalogs(f, config, client, tokens)
}

func decodeCatalogs(r io.Reader, config *Config, client *http.Client, tokens TokenSource) ([]*Catalog, error) {
	var catalogMap map[string]*Catalog
	d := yaml.NewDecoder(r)
	if err := d.Decode(&catalogMap); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	var catalogs []*Catalog
	for slug, catalog := range catalogMap {
		if catalog == nil {
			catalog = &Catalog{}
		}
		catalog.Slug = slug
		if catalog.Name == "" {
			catalog.Name = flect.Titleize(slug)
		}
		if catalog.Prefix == "" {
			catalog.Prefix = "/v1/" + slug
		}
		catalog.Prefix = "/" + strings.Trim(catalog.Prefix, "/")
		catalog.Config = config
		catalog.Client = client
		catalog.Tokens = tokens
		catalogs = append(catalogs, catalog)
	}

	sort.Slice(catalogs, func(i, j int) bool {
		return catalogs[i].Slug < catalogs[j].Slug
	})
	return catalogs, nil
}
