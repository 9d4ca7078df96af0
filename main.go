package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/moodring/authbootstrap/credentials"
	"github.com/moodring/authbootstrap/pkce"
	"github.com/rs/zerolog/log"
)

func main() {
	// load config from the environment
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	// configure logging
	configureLogging(cfg.LogLevel)

	client := cfg.HTTPClient()
	store := newCookieStore(cfg.SessionSecret)
	s := newServer(cfg, store)

	// configure interactive login if enabled
	if cfg.LoginEnabled() {
		gothic.Store = store

		provider := pkce.New(
			cfg.ClientID,
			cfg.RedirectURI,
			cfg.AccountsURL,
			cfg.APIURL,
		)
		provider.HTTPClient = client
		provider.VerifierLength = cfg.VerifierLength
		goth.UseProviders(provider)

		gothic.GetProviderName = func(req *http.Request) (string, error) {
			return provider.Name(), nil
		}

		log.Info().Msgf("enabling login with %s provider", provider.Name())
	} else {
		log.Warn().Msg("login disabled: CLIENT_ID and SESSION_SECRET are required")
	}

	// catalogs need client credentials
	var catalogs []*Catalog
	if cfg.CatalogEnabled() {
		fetcher := credentials.NewFetcher(credentials.Options{
			TokenURL:   cfg.TokenURL(),
			HTTPClient: client,
			Logger:     &log.Logger,
		})
		tokens := credentials.NewSource(fetcher, cfg.Credentials())

		catalogs, err = loadCatalogs(cfg.ConfigFile, cfg, client, tokens)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.ConfigFile).Msg("loading catalogs")
		}
		for _, c := range catalogs {
			log.Info().Msgf("mounting %s at /%s/", c.Name, c.Slug)
		}
	} else {
		log.Warn().Msg("catalogs disabled: CLIENT_ID and CLIENT_SECRET are required")
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(catalogs, os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.IdleConnTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal().Err(err).Send()

	case <-shutdown:
		log.Info().Msg("starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutting down server")
			if err := httpServer.Close(); err != nil {
				log.Error().Err(err).Msg("closing server")
			}
		}
	}
}
