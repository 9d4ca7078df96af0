package main

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/moodring/authbootstrap/credentials"
)

// Config represents the authbootstrap configuration that is loaded from the
// environment.
type Config struct {
	Listen          string        `envconfig:"LISTEN" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ConfigFile      string        `envconfig:"CONFIG_FILE" default:"catalogs.yml"`
	ClientID        string        `envconfig:"CLIENT_ID"`
	ClientSecret    string        `envconfig:"CLIENT_SECRET"`
	AccountsURL     string        `envconfig:"ACCOUNTS_URL" default:"https://accounts.spotify.com"`
	APIURL          string        `envconfig:"API_URL" default:"https://api.spotify.com"`
	RedirectURI     string        `envconfig:"REDIRECT_URI" default:"http://localhost:8080/auth/callback"`
	SessionSecret   string        `envconfig:"SESSION_SECRET"`
	VerifierLength  int           `envconfig:"VERIFIER_LENGTH" default:"64"`
	ProxyTimeout    time.Duration `envconfig:"PROXY_TIMEOUT" default:"10s"`
	ClientTimeout   time.Duration `envconfig:"CLIENT_TIMEOUT" default:"10s"`
	IdleConnTimeout time.Duration `envconfig:"IDLE_CONN_TIMEOUT" default:"120s"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"10"`
	PKCERate        float64       `envconfig:"PKCE_RATE" default:"5"`
	PKCEBurst       int           `envconfig:"PKCE_BURST" default:"10"`
}

var errVerifierLength = errors.New("VERIFIER_LENGTH must be positive")

// LoginEnabled reports whether interactive login can be offered. The PKCE
// flow needs a client id and a secret for the session cookies, but no client
// secret.
func (c *Config) LoginEnabled() bool {
	return c.ClientID != "" && c.SessionSecret != ""
}

// CatalogEnabled reports whether client credentials are configured for
// catalog lookups.
func (c *Config) CatalogEnabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c *Config) Credentials() credentials.Credentials {
	return credentials.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// TokenURL is the client-credentials endpoint under AccountsURL.
func (c *Config) TokenURL() string {
	return c.AccountsURL + "/api/token"
}

// HTTPClient returns an HTTP client for outbound calls with the configured
// timeouts.
func (c *Config) HTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		IdleConnTimeout: c.IdleConnTimeout,
		MaxIdleConns:    c.MaxIdleConns,
	}
	return &http.Client{
		Timeout:   c.ClientTimeout,
		Transport: transport,
	}
}

// LoadConfig loads the configuration from AUTHBOOT_* environment variables.
// A .env file in the working directory is read first when present; variables
// already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	c := &Config{}
	if err := envconfig.Process("authboot", c); err != nil {
		return nil, err
	}
	if c.VerifierLength < 1 {
		return nil, errVerifierLength
	}
	return c, nil
}
